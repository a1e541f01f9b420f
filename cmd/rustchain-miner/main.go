// SPDX-License-Identifier: MIT

// rustchain-miner probes the local host and drives the
// challenge/submit/enroll flow against a node.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"rustchain/types"
)

func main() {
	fs := flag.NewFlagSet("rustchain-miner", flag.ExitOnError)
	nodeURL := fs.String("node", "http://localhost:8088", "node base URL")
	miner := fs.String("miner", "", "miner identity (usually the RTC address)")
	address := fs.String("address", "", "payout RTC address (defaults to -miner)")
	serial := fs.String("serial", "", "hardware serial override")
	family := fs.String("family", "", "architecture family override")
	year := fs.Int("year", 0, "hardware release year (0 = unknown)")
	enroll := fs.Bool("enroll", true, "enroll in the current epoch after attesting")
	fs.Parse(os.Args[1:])

	if *miner == "" {
		fatal(fmt.Errorf("missing -miner"))
	}
	payout := *address
	if payout == "" {
		payout = *miner
	}

	id, err := collectIdentity()
	if err != nil {
		fatal(err)
	}
	if *serial != "" {
		id.Serial = *serial
	}
	if *family != "" {
		id.Family = *family
	}

	fmt.Printf("host: arch=%s family=%s cores=%d\n", id.Arch, id.Family, id.Cores)
	fmt.Println("collecting fingerprint evidence...")
	evidence := collectEvidence()

	client := &http.Client{Timeout: 30 * time.Second}

	var challenge types.Challenge
	if err := postJSON(client, *nodeURL+"/attest/challenge",
		map[string]string{"miner_id": *miner}, &challenge); err != nil {
		fatal(fmt.Errorf("challenge request: %w", err))
	}
	fmt.Printf("challenge: %s (expires %d)\n", challenge.Nonce, challenge.ExpiresAt)

	sub := types.AttestationSubmission{
		Miner:       types.MinerID(*miner),
		Nonce:       challenge.Nonce,
		ClientTS:    time.Now().Unix(),
		Serial:      id.Serial,
		Arch:        id.Arch,
		Family:      id.Family,
		ReleaseYear: *year,
		Cores:       id.Cores,
		Evidence:    evidence,
	}

	var result types.AttestationResult
	if err := postJSON(client, *nodeURL+"/attest/submit", sub, &result); err != nil {
		fatal(fmt.Errorf("submit: %w", err))
	}

	if !result.Accepted {
		fmt.Printf("attestation rejected: %s\n", result.Reason)
		for _, f := range result.Verdict.Failures {
			fmt.Printf("  check failed: %s\n", f)
		}
		os.Exit(1)
	}
	fmt.Printf("attestation accepted: bind=%s multiplier=%.2f\n", result.Bind, result.Multiplier)

	if !*enroll {
		return
	}
	var enr types.Enrollment
	err = postJSON(client, *nodeURL+"/epoch/enroll",
		map[string]string{"miner_id": *miner, "address": payout}, &enr)
	if err != nil {
		fatal(fmt.Errorf("enroll: %w", err))
	}
	fmt.Printf("enrolled in epoch %d with weight %.2fx\n", enr.Epoch, enr.Multiplier)
}

func postJSON(client *http.Client, url string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", resp.Status, string(data))
	}
	return json.Unmarshal(data, out)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
