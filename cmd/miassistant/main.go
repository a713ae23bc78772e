// Command miassistant is the flag-based CLI front-end: it wires
// internal/usbhost, internal/protocol, internal/sideload, internal/validate
// and internal/md5sum together the way the teacher's cmd/cli wires its own
// internal packages around a flag.Bool var block.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/atotto/clipboard"

	"miassistant/internal/apiserver"
	"miassistant/internal/config"
	"miassistant/internal/deviceinfo"
	"miassistant/internal/md5sum"
	"miassistant/internal/protocol"
	"miassistant/internal/sideload"
	"miassistant/internal/usbhost"
	"miassistant/internal/validate"
)

var (
	timeout = flag.Duration("timeout", 10*time.Second, "USB bulk transfer timeout")
	resume  = flag.Bool("resume", true, "resume a sideload transfer from its journal when present")
	copyOut = flag.Bool("copy", false, "copy the command's primary result (serial, token) to the clipboard")
	yes     = flag.Bool("yes", false, "skip the interactive erase confirmation for flash")
	api     = flag.String("api", "", "serve live status/cancel API on this address during flash/sideload, e.g. :8787 (disabled if empty)")
)

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "detect":
		err = runDetect()
	case "devices":
		err = runDevices()
	case "info":
		err = runInfo()
	case "adb":
		if len(args) < 2 {
			err = fmt.Errorf("usage: miassistant adb <command>")
			break
		}
		err = runAdb(strings.Join(args[1:], " "))
	case "md5":
		if len(args) < 2 {
			err = fmt.Errorf("usage: miassistant md5 <file>")
			break
		}
		err = runMd5(args[1])
	case "listroms":
		err = runListRoms()
	case "flash":
		if len(args) < 2 {
			err = fmt.Errorf("usage: miassistant flash <file>")
			break
		}
		err = runFlash(args[1])
	case "sideload":
		if len(args) < 3 {
			err = fmt.Errorf("usage: miassistant sideload <file> <token>")
			break
		}
		err = runSideload(args[1], args[2])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("miassistant: %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: miassistant [flags] <detect|devices|info|adb|md5|listroms|flash|sideload> [args]")
	flag.PrintDefaults()
}

func openTransport() (*protocol.Transport, usbhost.OpenDevice, error) {
	dev, err := usbhost.FindFirstADB()
	if err != nil {
		return nil, nil, err
	}
	eps := dev.Endpoints()
	t := protocol.NewTransport(dev, eps.BulkIn, eps.BulkOut, int(timeout.Milliseconds()))
	if _, err := protocol.Connect(t); err != nil {
		dev.Close()
		return nil, nil, err
	}
	return t, dev, nil
}

func runDetect() error {
	_, dev, err := openTransport()
	if err != nil {
		return err
	}
	defer dev.Close()
	fmt.Println("device detected (endpoints ok)")
	return nil
}

func runDevices() error {
	devs, err := usbhost.ListADBDevices()
	if err != nil {
		return err
	}
	enc, err := json.MarshalIndent(devs, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(enc))
	return nil
}

func runInfo() error {
	t, dev, err := openTransport()
	if err != nil {
		return err
	}
	defer dev.Close()

	info, err := deviceinfo.Probe(t)
	if err != nil {
		return err
	}
	enc, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(enc))
	if *copyOut {
		copyToClipboard(info.SN)
	}
	return nil
}

func runAdb(cmd string) error {
	t, dev, err := openTransport()
	if err != nil {
		return err
	}
	defer dev.Close()

	reply, err := protocol.SimpleCommand(t, cmd)
	if err != nil {
		return err
	}
	fmt.Println(reply)
	return nil
}

func runMd5(path string) error {
	sum, err := md5sum.File(path)
	if err != nil {
		return err
	}
	fmt.Println(sum)
	return nil
}

func runListRoms() error {
	t, dev, err := openTransport()
	if err != nil {
		return err
	}
	defer dev.Close()

	info, err := deviceinfo.Probe(t)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	client := validate.New()
	client.Endpoint = cfg.ValidationEndpoint

	result, err := client.Validate(info, "", false)
	if err != nil {
		return err
	}
	listing, ok := result.(validate.Listing)
	if !ok {
		return fmt.Errorf("expected a rom listing, got %T", result)
	}
	var pretty map[string]interface{}
	if err := json.Unmarshal(listing.Payload, &pretty); err != nil {
		fmt.Println(string(listing.Payload))
		return nil
	}
	enc, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(enc))
	return nil
}

// startAPIIfRequested starts an apiserver.Server on -api when set, returning
// nil otherwise. The caller must Shutdown a non-nil server when done.
func startAPIIfRequested(cancel *atomic.Bool) (*apiserver.Server, error) {
	if *api == "" {
		return nil, nil
	}
	srv := apiserver.New(cancel)
	if err := srv.Start(*api); err != nil {
		return nil, fmt.Errorf("starting api server: %w", err)
	}
	log.Printf("status/cancel api listening on %s", *api)
	return srv, nil
}

func runFlash(path string) error {
	sum, err := md5sum.File(path)
	if err != nil {
		return err
	}

	t, dev, err := openTransport()
	if err != nil {
		return err
	}
	defer dev.Close()

	info, err := deviceinfo.Probe(t)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	client := validate.New()
	client.Endpoint = cfg.ValidationEndpoint

	result, err := client.Validate(info, sum, true)
	if err != nil {
		return err
	}
	token, ok := result.(validate.FlashToken)
	if !ok {
		return fmt.Errorf("expected a flash token, got %T", result)
	}

	if token.Erase && !*yes && !confirmErase() {
		return fmt.Errorf("erase not confirmed, aborting before sideload")
	}

	if *copyOut {
		copyToClipboard(token.Token)
	}

	var cancel atomic.Bool
	srv, err := startAPIIfRequested(&cancel)
	if err != nil {
		return err
	}
	if srv != nil {
		srv.SetDeviceInfo(info)
		defer srv.Shutdown()
	}

	return sideload.Run(t, path, token.Token, &cancel, *resume, func(sent, total uint64) {
		if srv != nil {
			srv.UpdateProgress(sent, total)
		}
		fmt.Printf("\r%d/%d bytes", sent, total)
		if sent >= total {
			fmt.Println()
		}
	})
}

func runSideload(path, token string) error {
	t, dev, err := openTransport()
	if err != nil {
		return err
	}
	defer dev.Close()

	var cancel atomic.Bool
	srv, err := startAPIIfRequested(&cancel)
	if err != nil {
		return err
	}
	if srv != nil {
		defer srv.Shutdown()
	}

	return sideload.Run(t, path, token, &cancel, *resume, func(sent, total uint64) {
		if srv != nil {
			srv.UpdateProgress(sent, total)
		}
		fmt.Printf("\r%d/%d bytes", sent, total)
		if sent >= total {
			fmt.Println()
		}
	})
}

// confirmErase asks on stdin before a destructive flash proceeds, mirroring
// the GUI's "Yes, erase data" confirmation dialog.
func confirmErase() bool {
	fmt.Print("this flash will erase all data on the device. type 'yes' to continue: ")
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line) == "yes"
}

func copyToClipboard(text string) {
	if text == "" {
		return
	}
	if err := clipboard.WriteAll(text); err != nil {
		log.Printf("clipboard copy failed: %v", err)
	}
}
