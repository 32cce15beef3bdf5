// Command busupdater-sim is a host-side console for exercising a
// bus-updater Engine in-process, without a device or a physical bus.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
	"zappem.net/pub/debug/xxd"

	"openenterprise/bus-updater/config"
	"openenterprise/bus-updater/diagnostics"
	"openenterprise/bus-updater/flashdrv"
	"openenterprise/bus-updater/progpin"
	"openenterprise/bus-updater/updater"
)

func main() {
	broker := flag.String("broker", "", "MQTT broker address (host:port) to publish diagnostics to; disabled if empty")
	topic := flag.String("topic", "bus-updater/diagnostics", "MQTT topic to publish progress and error events on")
	clientID := flag.String("clientid", "busupdater-sim", "MQTT client ID to connect with")
	flag.Parse()

	cfg := config.Default()
	uid := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 0xAA, 0xBB, 0xCC, 0xDD}
	flash := flashdrv.NewSim(2*1024*1024, cfg.SectorSize, cfg.PageSize, uid)
	pin := &progpin.Sim{}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	engine := updater.NewEngine(cfg, flash, flash, pin, log)

	var diag *diagnostics.Publisher
	if *broker != "" {
		d, err := diagnostics.Dial(*broker, *topic, *clientID, log)
		if err != nil {
			fmt.Println("diagnostics disabled:", err)
		} else {
			diag = d
			defer diag.Close()
		}
	}

	fmt.Println("busupdater-sim — type 'help' for commands, 'quit' to exit")
	repl(engine, pin, flash, diag)
}

func repl(e *updater.Engine, pin *progpin.Sim, flash *flashdrv.Sim, diag *diagnostics.Publisher) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "quit", "exit":
			return
		case "help":
			printHelp()
		case "pin":
			if len(fields) < 2 {
				fmt.Println("usage: pin <on|off>")
				continue
			}
			pin.Set(fields[1] == "on")
		case "unlock":
			cmdUnlock(e, diag)
		case "erase":
			cmdErase(e, diag, fields)
		case "send":
			cmdSend(e, diag, fields)
		case "program":
			cmdProgram(e, diag, fields)
		case "bootdesc":
			cmdBootDesc(e, diag, fields)
		case "getlasterror":
			cmdGetLastError(e, diag)
		case "requestuid":
			cmdRequestUID(e, diag)
		case "appversion":
			cmdAppVersion(e, diag, fields)
		case "setemu":
			cmdSetEmu(e, diag, fields)
		case "dump":
			cmdDump(flash, fields)
		default:
			fmt.Printf("unknown command %q, try 'help'\n", fields[0])
		}
	}
}

func printHelp() {
	fmt.Println(`commands:
  pin <on|off>                  toggle the simulated program-enable pin
  unlock                        unlock via a securely-entered UID
  erase <sector>
  send <hex bytes, no spaces>
  program <count> <addr> <crc>  all hex, e.g. program 4 1000 deadbeef
  bootdesc <crc> <slot>
  getlasterror
  requestuid
  appversion <slot>
  setemu <mask>
  dump <addr> <len>             hex-dump flash contents
  quit`)
}

// cmdUnlock prompts for the 12-byte UID without echoing it to the
// terminal.
func cmdUnlock(e *updater.Engine, diag *diagnostics.Publisher) {
	fmt.Print("UID (24 hex chars): ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Println("read failed:", err)
		return
	}
	uidBytes, err := decodeHex(strings.TrimSpace(string(raw)))
	if err != nil || len(uidBytes) != 12 {
		fmt.Println("UID must be exactly 24 hex characters")
		return
	}
	frame := []byte{0, 0, byte(updater.OpUnlockDevice)}
	frame = append(frame, uidBytes...)
	dispatch(e, diag, frame)
}

func cmdErase(e *updater.Engine, diag *diagnostics.Publisher, fields []string) {
	if len(fields) < 2 {
		fmt.Println("usage: erase <sector>")
		return
	}
	sector, err := strconv.ParseUint(fields[1], 0, 8)
	if err != nil {
		fmt.Println("bad sector:", err)
		return
	}
	dispatch(e, diag, []byte{0, 0, byte(updater.OpEraseSector), byte(sector)})
}

func cmdSend(e *updater.Engine, diag *diagnostics.Publisher, fields []string) {
	if len(fields) < 2 {
		fmt.Println("usage: send <hex bytes>")
		return
	}
	data, err := decodeHex(fields[1])
	if err != nil {
		fmt.Println("bad hex:", err)
		return
	}
	if len(data) > 15 {
		fmt.Println("at most 15 bytes per SEND_DATA frame (count nibble)")
		return
	}
	frame := []byte{byte(len(data)), 0, byte(updater.OpSendData)}
	frame = append(frame, data...)
	dispatch(e, diag, frame)
	if diag != nil {
		staged, total := e.StagingProgress()
		diag.PublishProgress(staged, total)
	}
}

func cmdProgram(e *updater.Engine, diag *diagnostics.Publisher, fields []string) {
	if len(fields) < 4 {
		fmt.Println("usage: program <count hex> <addr hex> <crc hex>")
		return
	}
	count, err1 := strconv.ParseUint(fields[1], 16, 32)
	addr, err2 := strconv.ParseUint(fields[2], 16, 32)
	crc, err3 := strconv.ParseUint(fields[3], 16, 32)
	if err1 != nil || err2 != nil || err3 != nil {
		fmt.Println("bad hex argument")
		return
	}
	frame := make([]byte, 3+12)
	frame[2] = byte(updater.OpProgram)
	putBE(frame[3:7], uint32(count))
	putBE(frame[7:11], uint32(addr))
	putBE(frame[11:15], uint32(crc))
	dispatch(e, diag, frame)
}

func cmdBootDesc(e *updater.Engine, diag *diagnostics.Publisher, fields []string) {
	if len(fields) < 3 {
		fmt.Println("usage: bootdesc <crc hex> <slot>")
		return
	}
	crc, err1 := strconv.ParseUint(fields[1], 16, 32)
	slot, err2 := strconv.ParseUint(fields[2], 0, 8)
	if err1 != nil || err2 != nil {
		fmt.Println("bad argument")
		return
	}
	frame := make([]byte, 3+5)
	frame[2] = byte(updater.OpUpdateBootDesc)
	putBE(frame[3:7], uint32(crc))
	frame[7] = byte(slot)
	dispatch(e, diag, frame)
}

func cmdGetLastError(e *updater.Engine, diag *diagnostics.Publisher) {
	dispatch(e, diag, []byte{0, 0, byte(updater.OpGetLastError)})
}

func cmdRequestUID(e *updater.Engine, diag *diagnostics.Publisher) {
	dispatch(e, diag, []byte{0, 0, byte(updater.OpRequestUID)})
}

func cmdAppVersion(e *updater.Engine, diag *diagnostics.Publisher, fields []string) {
	if len(fields) < 2 {
		fmt.Println("usage: appversion <slot>")
		return
	}
	slot, err := strconv.ParseUint(fields[1], 0, 8)
	if err != nil {
		fmt.Println("bad slot:", err)
		return
	}
	dispatch(e, diag, []byte{0, 0, byte(updater.OpAppVersionReq), byte(slot)})
}

func cmdSetEmu(e *updater.Engine, diag *diagnostics.Publisher, fields []string) {
	if len(fields) < 2 {
		fmt.Println("usage: setemu <mask>")
		return
	}
	mask, err := strconv.ParseUint(fields[1], 0, 8)
	if err != nil {
		fmt.Println("bad mask:", err)
		return
	}
	dispatch(e, diag, []byte{0, 0, byte(updater.OpSetEmulation), byte(mask)})
}

func cmdDump(flash *flashdrv.Sim, fields []string) {
	if len(fields) < 3 {
		fmt.Println("usage: dump <addr hex> <len hex>")
		return
	}
	addr, err1 := strconv.ParseUint(fields[1], 16, 32)
	n, err2 := strconv.ParseUint(fields[2], 16, 32)
	if err1 != nil || err2 != nil {
		fmt.Println("bad argument")
		return
	}
	xxd.Print(int(addr), flash.ReadAt(uint32(addr), uint32(n)))
}

func dispatch(e *updater.Engine, diag *diagnostics.Publisher, frame []byte) {
	ack, reply := e.Dispatch(frame)
	if ack {
		fmt.Println("ACK")
	} else {
		fmt.Println("NACK", e.LastError())
	}
	if reply != nil {
		xxd.Print(0, reply)
	}
	if diag != nil {
		diag.PublishError(e.LastError())
	}
}

func putBE(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func decodeHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string")
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		b, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(b)
	}
	return out, nil
}
