package main

import "github.com/JPITSG/ChromeDevLauncher/cmd"

func main() {
	cmd.Execute()
}
