//go:build ignore
// +build ignore

// Package main provides a manual concurrency stress test for the circulation API.
//
// Usage:
//
//	go run ./scripts/concurrency_test.go <book_id> <student1_id> [student2_id ...]
//
// Or use the convenience environment variables:
//
//	BOOK_ID=042  STUDENT_IDS=STU00001,STU00002,...  go run ./scripts/concurrency_test.go
//
// What it does:
//  1. Fires N goroutines (one per student) all attempting to issue the same book simultaneously.
//  2. Prints how many were issued vs. rejected because the book was already out.
//  3. Exits non-zero unless exactly one issue succeeded.
//
// Prerequisites:
//   - Server must be running (circulation serve).
//   - The book must be Available and each student must hold fewer than 3 books.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

type issueResult struct {
	StudentID  string
	StatusCode int
	Kind       string
	Err        error
}

func main() {
	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}

	bookID := os.Getenv("BOOK_ID")
	var studentIDs []string
	if env := os.Getenv("STUDENT_IDS"); env != "" {
		studentIDs = strings.Split(env, ",")
	}

	args := os.Args[1:]
	if len(args) >= 1 {
		bookID = args[0]
	}
	if len(args) >= 2 {
		studentIDs = args[1:]
	}

	if bookID == "" {
		log.Fatal("Usage: BOOK_ID=<id> STUDENT_IDS=<s1,s2,...> go run ./scripts/concurrency_test.go\n" +
			"  or: go run ./scripts/concurrency_test.go <book_id> <student1_id> [student2_id ...]")
	}
	if len(studentIDs) == 0 {
		log.Fatal("At least one student ID must be provided via STUDENT_IDS env or positional args")
	}

	fmt.Printf("=== Circulation Concurrency Test ===\n")
	fmt.Printf("Server   : %s\n", serverAddr)
	fmt.Printf("Book     : %s\n", bookID)
	fmt.Printf("Students : %d\n\n", len(studentIDs))

	results := make([]issueResult, len(studentIDs))
	var wg sync.WaitGroup

	// Fire all goroutines simultaneously using a barrier.
	start := make(chan struct{})

	for i, sid := range studentIDs {
		wg.Add(1)
		go func(idx int, studentID string) {
			defer wg.Done()
			<-start
			results[idx] = attemptIssue(serverAddr, bookID, strings.TrimSpace(studentID), idx)
		}(i, sid)
	}

	fmt.Println("Firing all requests simultaneously...")
	close(start)

	wg.Wait()
	fmt.Println("All requests completed.")

	var issued, conflicts, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] student=%-10s err=%v\n", r.StudentID, r.Err)
		case r.StatusCode == http.StatusCreated:
			issued++
			fmt.Printf("  [ISSU] student=%-10s status=%d\n", r.StudentID, r.StatusCode)
		case r.StatusCode == http.StatusConflict:
			conflicts++
			fmt.Printf("  [CONF] student=%-10s status=%d kind=%s\n", r.StudentID, r.StatusCode, r.Kind)
		default:
			failures++
			fmt.Printf("  [FAIL] student=%-10s status=%d kind=%s\n", r.StudentID, r.StatusCode, r.Kind)
		}
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Issued    : %d\n", issued)
	fmt.Printf("Conflicts : %d\n", conflicts)
	fmt.Printf("Failures  : %d\n", failures)
	fmt.Printf("Total     : %d\n\n", len(studentIDs))

	fmt.Println("--- Invariant Check ---")
	if issued != 1 {
		fmt.Printf("[FAIL] expected exactly one issue of book %s, got %d\n", bookID, issued)
		os.Exit(1)
	}
	fmt.Println("[OK] the book was issued exactly once.")

	if failures > 0 {
		fmt.Printf("\n[WARNING] %d request(s) failed, check server logs for details.\n", failures)
		os.Exit(1)
	}
}

// attemptIssue sends POST /transactions/issue for the given student and records the
// status code and error kind.
func attemptIssue(serverAddr, bookID, studentID string, n int) issueResult {
	url := serverAddr + "/transactions/issue"
	body := fmt.Sprintf(`{"book_id":%q,"student_id":%q,"rfid":"STRESS%d"}`, bookID, studentID, n)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		return issueResult{StudentID: studentID, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return issueResult{StudentID: studentID, StatusCode: resp.StatusCode, Err: fmt.Errorf("bad JSON: %s", raw)}
	}

	kind, _ := parsed["kind"].(string)
	return issueResult{
		StudentID:  studentID,
		StatusCode: resp.StatusCode,
		Kind:       kind,
	}
}
