package app

import (
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/wallfollower/internal/config"
	"github.com/relabs-tech/wallfollower/internal/telemetry"
)

const (
	oledW = 128
	oledH = 64
)

// displayData holds the latest tick for the OLED.
type displayData struct {
	mu   sync.RWMutex
	tick telemetry.TickRecord
	have bool
}

func (d *displayData) update(r telemetry.TickRecord) {
	d.mu.Lock()
	d.tick = r
	d.have = true
	d.mu.Unlock()
}

func (d *displayData) snapshot() (telemetry.TickRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tick, d.have
}

// statusLines is the text shown for one tick, one entry per row.
func statusLines(r telemetry.TickRecord, have bool) []string {
	if !have {
		return []string{"Wall follower", "Waiting..."}
	}
	s := summarize(r)
	return []string{
		fmt.Sprintf("%-11s %4.2f", s.Top, s.TopProb),
		r.Phase,
		fmt.Sprintf("d=%4.1fcm #%d", r.Distance, r.Tick),
		fmt.Sprintf("L%5.1f R%5.1f", r.Left, r.Right),
	}
}

func renderLines(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, oledW, oledH))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawBytes([]byte(line))
	}
	return img
}

// RunDisplay shows the top belief and controller phase on an SSD1306 OLED.
func RunDisplay() error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	opts := ssd1306.DefaultOpts
	dev, err := ssd1306.NewI2C(bus, &opts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	log.Println("display: OLED initialized")

	if err := dev.Draw(dev.Bounds(), renderLines(statusLines(telemetry.TickRecord{}, false)), image.Point{}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	client, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	data := &displayData{}
	if err := telemetry.Subscribe(client, cfg.TopicTelemetry, data.update); err != nil {
		return err
	}
	log.Printf("display: subscribed to %s", cfg.TopicTelemetry)

	ticker := time.NewTicker(cfg.DisplayUpdateInterval)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	lastTick := -1
	for range ticker.C {
		r, have := data.snapshot()
		if have && r.Tick == lastTick {
			continue
		}
		lastTick = r.Tick
		if err := dev.Draw(dev.Bounds(), renderLines(statusLines(r, have)), image.Point{}); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
	return nil
}
