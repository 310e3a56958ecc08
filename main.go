package main

//go:generate sh -c "go run main.go server --print-openapi > openapi.json"
import "github.com/pbrmon/pbrmon/cmd"

func main() {
	cmd.Execute()
}
