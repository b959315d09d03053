// Command relay turns action plans into routed, tracked units of work.
package main

func main() {
	Execute()
}
