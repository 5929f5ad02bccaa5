// Command crawler walks a Solana account's transaction history backwards,
// filters transactions and instructions, and extracts labelled accounts.
//
// Usage:
//
//	crawler crawl --plan plan.yaml
//	crawler resume --plan plan.yaml
//	crawler presets
package main

func main() {
	Execute()
}
