// Command vfslockctl drives the acquire/release/mark-fail/is-fail/
// clear-fail operations of the cross-party file-item locking protocol
// manually against a chosen backend, for operational use and for
// smoke-testing the protocol end to end the way a listener or sender
// would exercise it from a shell poll loop.
package main

func main() {
	Execute()
}
