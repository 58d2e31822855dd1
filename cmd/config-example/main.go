// Command config-example loads an onvifd.ini file through the Config
// Runtime/Storage layer and prints the resulting snapshot, useful for
// validating a config file before handing it to the daemon.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/onvifcam/onvifd/internal/config"
)

func main() {
	configPath := "onvifd.ini"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	runtime := config.NewRuntime(nil, nil)
	storage := config.NewStorage(configPath, runtime, nil)
	if err := storage.Load(); err != nil {
		log.Printf("config load degraded: %v", err)
	}
	cfg := runtime.Snapshot()

	fmt.Println("=== onvifd configuration ===")
	fmt.Printf("Network: %s (http :%d, rtsp :%d, discovery=%t)\n",
		cfg.Network.Host, cfg.Network.HTTPPort, cfg.Network.RTSPPort, cfg.Network.DiscoveryEnabled)

	fmt.Printf("\nDevice:\n")
	fmt.Printf("  Manufacturer: %s\n", cfg.Onvif.Manufacturer)
	fmt.Printf("  Model: %s\n", cfg.Onvif.Model)
	fmt.Printf("  Firmware: %s\n", cfg.Onvif.FirmwareVersion)
	fmt.Printf("  Serial: %s\n", cfg.Onvif.SerialNumber)
	fmt.Printf("  Realm: %s\n", cfg.Onvif.Realm)

	fmt.Printf("\nImaging:\n")
	fmt.Printf("  Brightness: %d  Contrast: %d  Saturation: %d  Sharpness: %d\n",
		cfg.Imaging.Brightness, cfg.Imaging.Contrast, cfg.Imaging.Saturation, cfg.Imaging.Sharpness)
	fmt.Printf("  White Balance: %s\n", cfg.Imaging.WhiteBalance)
	fmt.Printf("  Auto IR: enabled=%t threshold=%d\n", cfg.AutoIR.Enabled, cfg.AutoIR.Threshold)

	fmt.Printf("\nProfiles:\n")
	for _, p := range cfg.Profiles {
		fmt.Printf("  %s: %dx%d@%dfps %dkbps (audio enabled=%t)\n",
			p.Token, p.Video.Width, p.Video.Height, p.Video.FrameRate, p.Video.BitrateKbps, p.Audio.Enabled)
	}

	fmt.Printf("\nPTZ presets:\n")
	for i, p := range cfg.PTZ.Presets {
		if p.Token == "" {
			continue
		}
		fmt.Printf("  [%d] %s: pan=%.2f tilt=%.2f zoom=%.2f\n", i, p.Token, p.Pan, p.Tilt, p.Zoom)
	}

	fmt.Printf("\nLogging:\n")
	fmt.Printf("  Level: %s  Format: %s\n", cfg.Logging.Level, cfg.Logging.Format)
	fmt.Printf("  File Enabled: %t\n", cfg.Logging.FileEnabled)
	if cfg.Logging.FileEnabled {
		fmt.Printf("  File Path: %s\n", cfg.Logging.FilePath)
	}

	fmt.Printf("\nUsers: %d configured\n", len(cfg.Users))
	fmt.Println("\n=== configuration loaded successfully ===")
}
