package main

import "github.com/clubgallery/photoflow/cmd"

func main() {
	cmd.Execute()
}
