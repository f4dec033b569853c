// Command applogtail prints the JSON log files written by applog in a readable form.
package main

func main() {
	Execute()
}
