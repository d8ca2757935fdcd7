package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jpalmerr/pulsecast"
)

var errNoSelection = errors.New("no device selected")

// promptSelector asks the user to pick a device on out, reading the answer
// from in. An empty answer picks the first device; invalid answers are
// asked again.
func promptSelector(in io.Reader, out io.Writer) pulsecast.DeviceSelector {
	return func(ctx context.Context, devices []pulsecast.Device) (pulsecast.Device, error) {
		lines := make(chan string)
		stop := make(chan struct{})
		defer close(stop)

		go func() {
			defer close(lines)
			sc := bufio.NewScanner(in)
			for sc.Scan() {
				select {
				case lines <- sc.Text():
				case <-stop:
					return
				}
			}
		}()

		fmt.Fprintf(out, "\nFound %d heart rate devices:\n", len(devices))
		for i, d := range devices {
			fmt.Fprintf(out, "  %d) %s (%s)\n", i+1, d.Name, d.Address)
		}

		for {
			fmt.Fprintf(out, "Select device [1]: ")

			var line string
			var ok bool
			select {
			case <-ctx.Done():
				return pulsecast.Device{}, ctx.Err()
			case line, ok = <-lines:
			}
			if !ok {
				return pulsecast.Device{}, errNoSelection
			}

			line = strings.TrimSpace(line)
			if line == "" {
				return devices[0], nil
			}
			n, err := strconv.Atoi(line)
			if err != nil || n < 1 || n > len(devices) {
				fmt.Fprintf(out, "Invalid choice %q, enter a number between 1 and %d.\n", line, len(devices))
				continue
			}
			return devices[n-1], nil
		}
	}
}
