//go:build tinygo

package main

import (
	"log/slog"
	"machine"
	"time"

	"openenterprise/bus-updater/audit"
	"openenterprise/bus-updater/config"
	"openenterprise/bus-updater/flashdrv"
	"openenterprise/bus-updater/progpin"
	"openenterprise/bus-updater/updater"
	"openenterprise/bus-updater/version"
)

// programEnablePin is the GPIO the operator asserts to authorize an
// unlock or a REQUEST_UID without presenting the chip's unique ID.
const programEnablePin = machine.GP2

// FrameBus is the out-of-scope physical bus transport:
// whatever carries telegram bytes between this device and the update
// host. This project only drives the protocol state machine; framing
// the bytes onto a wire is a board-specific concern left to main's own
// wiring.
type FrameBus interface {
	ReadFrame(buf []byte) (n int, err error)
	WriteAck(ok bool) error
	WriteReply(frame []byte) error
}

func main() {
	cfg := config.Default()

	ring := &audit.Ring{}
	logger := slog.New(audit.NewHandler(machine.Serial, ring, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("boot", "version", version.Version, "build", version.BuildMarker)

	flash := flashdrv.NewMCU(cfg.SectorSize, cfg.PageSize)
	pin := progpin.NewMCU(programEnablePin)
	engine := updater.NewEngine(cfg, flash, flash, pin, logger)

	bus := newUARTBus(machine.UART1)
	runLoop(engine, bus, logger)
}

// runLoop pumps frames off the bus into the engine forever. It never
// returns; a device whose bus driver fails to produce frames simply
// idles here.
func runLoop(e *updater.Engine, bus FrameBus, log *slog.Logger) {
	buf := make([]byte, 512)
	for {
		n, err := bus.ReadFrame(buf)
		if err != nil {
			log.Warn("bus:read-error", "error", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		ack, reply := e.Dispatch(buf[:n])
		if reply != nil {
			bus.WriteReply(reply)
			continue
		}
		bus.WriteAck(ack)
	}
}
