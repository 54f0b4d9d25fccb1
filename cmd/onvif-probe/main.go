package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	onvif "github.com/SridarDhandapani/onvif-simulator"
	"github.com/SridarDhandapani/onvif-simulator/client"
	"github.com/SridarDhandapani/onvif-simulator/discovery"
)

func main() {
	var username, password, target, irMode string
	var detailed, insecure bool
	var timeout, listen time.Duration

	flag.StringVar(&username, "user", "", "ONVIF username")
	flag.StringVar(&password, "pass", "", "ONVIF password")
	flag.StringVar(&target, "device", "", "Device service URL; skips discovery")
	flag.BoolVar(&detailed, "detailed", false, "Fetch detailed device information")
	flag.BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification")
	flag.StringVar(&irMode, "ir-mode", "", "IR mode to set on every device: on, off, auto")
	flag.DurationVar(&timeout, "timeout", onvif.DefaultTimeout, "Discovery and request timeout")
	flag.DurationVar(&listen, "events", 0, "Subscribe and print events for this long")
	flag.Parse()

	fmt.Println("===========================================")
	fmt.Println("   ONVIF Device Probe")
	fmt.Println("===========================================")
	fmt.Println()

	ctx := context.Background()
	var devices []client.Device
	if target != "" {
		devices = append(devices, client.Device{Address: target})
	} else {
		fmt.Println("🔍 Discovering ONVIF devices on the network...")
		matches, err := discovery.Probe(ctx, &discovery.ProbeOptions{
			Timeout: timeout,
			Types:   []onvif.QName{onvif.TypeNetworkVideoTransmitter},
		})
		if err != nil {
			log.Fatalf("Discovery failed: %v", err)
		}
		for _, m := range matches {
			if len(m.XAddrs) == 0 {
				continue
			}
			devices = append(devices, client.Device{Address: strings.Join(m.XAddrs, " "), Name: m.Name})
			fmt.Printf("   %s (%s)\n", m.Endpoint, strings.Join(m.Profiles, ", "))
		}
	}

	if len(devices) == 0 {
		fmt.Println("❌ No ONVIF devices found on the network.")
		return
	}
	fmt.Printf("✅ Found %d device(s)\n\n", len(devices))

	c := client.New(username, password, timeout)
	c.SetInsecureTLS(insecure)

	var mode onvif.IrCutFilterMode
	if irMode != "" {
		mode = onvif.IrCutFilterMode(strings.ToUpper(irMode))
		if !mode.Valid() {
			log.Fatalf("Invalid mode '%s': use on, off, or auto", irMode)
		}
	}

	for i := range devices {
		d := &devices[i]
		fmt.Printf("Device #%d\n", i+1)
		fmt.Println(strings.Repeat("=", 60))

		if detailed || mode != "" || listen > 0 {
			if err := c.GetDeviceInformation(ctx, d); err != nil {
				fmt.Printf("⚠️  Failed to fetch details: %v\n", err)
			}
		}
		fmt.Printf("📷 Name:     %s\n", d.DisplayName())
		fmt.Printf("🌐 Address:  %s\n", d.Address)

		if detailed {
			printDetails(ctx, c, d)
		}
		if mode != "" {
			setIrMode(ctx, c, d, mode)
		}
		if listen > 0 {
			printEvents(ctx, c, d, listen, timeout/2)
		}
		fmt.Println()
	}
}

func printDetails(ctx context.Context, c *client.Client, d *client.Device) {
	if d.Manufacturer != "" {
		fmt.Printf("🏭 Manufacturer: %s\n", d.Manufacturer)
	}
	if d.Model != "" {
		fmt.Printf("📱 Model:        %s\n", d.Model)
	}
	if d.SerialNumber != "" {
		fmt.Printf("🔢 Serial:       %s\n", d.SerialNumber)
	}
	if d.Hostname != "" {
		fmt.Printf("💻 Hostname:     %s\n", d.Hostname)
	}
	if d.FirmwareVersion != "" {
		fmt.Printf("📀 Firmware:     %s\n", d.FirmwareVersion)
	}
	if d.DateTime != "" {
		fmt.Printf("⏰ Time:         %s\n", d.DateTime)
	}

	streams, err := c.GetStreamProfiles(ctx, d)
	if err == nil && len(streams) > 0 {
		fmt.Println("\n📹 Stream Configurations:")
		for j, s := range streams {
			fmt.Printf("   %d. %s (%s): %dx%d @ %dfps, %s\n",
				j+1, s.ProfileName, s.Quality, s.Resolution.Width, s.Resolution.Height, s.Framerate, s.Encoding)
			if s.StreamURI != "" {
				fmt.Printf("      RTSP: %s\n", s.StreamURI)
			}
			if s.PTZConfig == "" {
				continue
			}
			if st, err := c.GetPTZStatus(ctx, d, s.ProfileToken); err == nil {
				fmt.Printf("      PTZ:  pan %.3f tilt %.3f zoom %.3f\n", st.Position.Pan, st.Position.Tilt, st.Position.Zoom)
			}
		}
	}

	if settings, err := c.GetImagingSettings(ctx, d); err == nil {
		fmt.Println("\n🎛  Imaging:")
		fmt.Printf("   Brightness %.0f, Contrast %.0f, Saturation %.0f, Sharpness %.0f, IR cut filter %s\n",
			settings.Brightness, settings.Contrast, settings.ColorSaturation, settings.Sharpness, settings.IrCutFilter)
	}
}

func setIrMode(ctx context.Context, c *client.Client, d *client.Device, mode onvif.IrCutFilterMode) {
	fmt.Printf("\nSetting IR cut filter to: %s\n", mode)
	if err := c.SetIrCutFilter(ctx, d, mode); err != nil {
		fmt.Printf("⚠️  Failed to set IR cut filter: %v\n", err)
		return
	}
	settings, err := c.GetImagingSettings(ctx, d)
	if err != nil {
		fmt.Printf("⚠️  Failed to verify: %v\n", err)
		return
	}
	fmt.Printf("Verified IR cut filter: %s\n", settings.IrCutFilter)
}

// printEvents long-polls for listen. Each pull waits at most wait so it
// finishes within the HTTP timeout.
func printEvents(ctx context.Context, c *client.Client, d *client.Device, listen, wait time.Duration) {
	pp, err := c.CreatePullPoint(ctx, d, listen+time.Minute)
	if err != nil {
		fmt.Printf("⚠️  Failed to subscribe: %v\n", err)
		return
	}
	defer c.Unsubscribe(ctx, pp)

	fmt.Printf("\n🔔 Listening for events on %s\n", pp.Address)
	deadline := time.Now().Add(listen)
	for remaining := time.Until(deadline); remaining > 0; remaining = time.Until(deadline) {
		msgs, err := c.PullMessages(ctx, pp, max(min(remaining, wait), time.Second), 10)
		if err != nil {
			fmt.Printf("⚠️  Pull failed: %v\n", err)
			return
		}
		for _, m := range msgs {
			fmt.Printf("   %s %s %s state=%s\n", m.UTCTime, m.Topic, m.Operation, m.Data["State"])
		}
	}
}
