// Command hookctl finds signatures in host binaries and applies patch files.
package main

func main() {
	execute()
}
