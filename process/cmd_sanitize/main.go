package main

import "bandalloc/process/sanitize"

func main() {
	sanitize.Run()
}
