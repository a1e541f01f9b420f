// SPDX-License-Identifier: MIT

// rustchain-wallet holds keys client side and talks to a node over
// HTTP. The node never sees a private key.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/google/uuid"

	"rustchain/types"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "keygen":
		runKeygen()
	case "address":
		runAddress(os.Args[2:])
	case "balance":
		runBalance(os.Args[2:])
	case "sign":
		runSign(os.Args[2:])
	case "send":
		runSend(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage: rustchain-wallet <command> [flags]")
	fmt.Println("  keygen                         generate a keypair")
	fmt.Println("  address -key <hex>             derive the RTC address")
	fmt.Println("  balance -addr <rtc> -node <url>")
	fmt.Println("  sign    -key <hex> -to <rtc> -amount <micro> [-memo s] [-nonce s]")
	fmt.Println("  send    -key <hex> -to <rtc> -amount <micro> -node <url> [-memo s]")
}

func runKeygen() {
	w, err := types.NewWallet()
	if err != nil {
		fatal(err)
	}
	privHex, err := types.PrivateKeyToHex(w.PrivateKey)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("address:     %s\n", w.Address)
	fmt.Printf("private_key: %s\n", privHex)
	fmt.Println("keep the private key offline; the node only ever needs the address")
}

func runAddress(args []string) {
	fs := flag.NewFlagSet("address", flag.ExitOnError)
	key := fs.String("key", "", "private key hex")
	fs.Parse(args)

	w := mustWallet(*key)
	fmt.Println(w.Address)
}

func runBalance(args []string) {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	addr := fs.String("addr", "", "RTC address")
	nodeURL := fs.String("node", "http://localhost:8088", "node base URL")
	fs.Parse(args)

	if *addr == "" {
		fatal(fmt.Errorf("missing -addr"))
	}
	resp, err := http.Get(*nodeURL + "/balance/" + *addr)
	if err != nil {
		fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Println(string(body))
}

func runSign(args []string) {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	key := fs.String("key", "", "private key hex")
	to := fs.String("to", "", "recipient RTC address")
	amount := fs.Int64("amount", 0, "amount in micro-RTC")
	memo := fs.String("memo", "", "optional memo")
	nonce := fs.String("nonce", "", "transfer nonce (random if empty)")
	fs.Parse(args)

	tr := buildTransfer(*key, *to, *amount, *memo, *nonce)
	out, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(out))
}

func runSend(args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	key := fs.String("key", "", "private key hex")
	to := fs.String("to", "", "recipient RTC address")
	amount := fs.Int64("amount", 0, "amount in micro-RTC")
	memo := fs.String("memo", "", "optional memo")
	nodeURL := fs.String("node", "http://localhost:8088", "node base URL")
	fs.Parse(args)

	tr := buildTransfer(*key, *to, *amount, *memo, "")
	raw, err := json.Marshal(tr)
	if err != nil {
		fatal(err)
	}
	resp, err := http.Post(*nodeURL+"/wallet/transfer/signed", "application/json", bytes.NewReader(raw))
	if err != nil {
		fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("%s %s\n", resp.Status, string(body))
}

func buildTransfer(key, to string, amount int64, memo, nonce string) *types.SignedTransfer {
	w := mustWallet(key)
	toAddr, err := types.ParseAddress(to)
	if err != nil {
		fatal(fmt.Errorf("bad -to address: %w", err))
	}
	if nonce == "" {
		nonce = uuid.NewString()
	}
	tr := &types.SignedTransfer{
		From:   w.Address,
		To:     toAddr,
		Amount: amount,
		Memo:   memo,
		Nonce:  nonce,
	}
	if err := tr.ValidateShape(); err != nil {
		fatal(err)
	}
	if err := types.SignTransfer(tr, w.PrivateKey); err != nil {
		fatal(err)
	}
	return tr
}

func mustWallet(keyHex string) *types.Wallet {
	if keyHex == "" {
		fatal(fmt.Errorf("missing -key"))
	}
	w, err := types.WalletFromHex(keyHex)
	if err != nil {
		fatal(err)
	}
	return w
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
