// Command admin runs database migrations and seeds accounts.
//
//	go run ./cmd/admin migrate up
//	go run ./cmd/admin seed admin
//	go run ./cmd/admin seed users --count 50
package main

func main() {
	Execute()
}
