package main

import "github.com/mendersoftware/iot-manager/cmd"

func main() {
	cmd.Execute()
}
