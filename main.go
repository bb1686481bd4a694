package main

import "github.com/Reugito/Create-View-in-Mongo-DB/internal/cli"

func main() {
	cli.Execute()
}
