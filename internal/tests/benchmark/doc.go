// Package benchmark holds performance benchmarks for the session registry
// and the local socket path.
//
// Run them with:
//
//	go test -bench=. -benchmem ./internal/tests/benchmark/...
//
// Compare runs with benchstat:
//
//	go test -bench=. -benchmem -count=5 ./internal/tests/benchmark/... | tee new.txt
//	benchstat old.txt new.txt
package benchmark
