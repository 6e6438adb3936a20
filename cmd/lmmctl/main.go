// Command lmmctl replays allocator scenarios, serves an allocator over
// HTTP and describes the host's memory as lmm regions.
package main

func main() {
	execute()
}
