// Package main is the entry point for the keyword crawler.
//
// Usage:
//
//	crawler serve
//	crawler consume
//	crawler crawl https://example.com -k golang
package main

func main() {
	Execute()
}
