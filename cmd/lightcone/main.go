// Command lightcone runs light-cone assays locally and talks to a trust
// gate server.
package main

func main() {
	Execute()
}
