package main

import "github.com/sajjad-MoBe/lsmstore/cmd"

func main() {
	cmd.ExecuteServer()
}
