// Zaparoo Serial Terminal
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Serial Terminal.
//
// Zaparoo Serial Terminal is free software: you can redistribute it and/or
// modify it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Serial Terminal is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Serial Terminal.  If not, see <http://www.gnu.org/licenses/>.

package helpers

import (
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"go.bug.st/serial"
)

// linuxDevicePrefixes are /dev entries that are serial ports but are not
// always reported by the driver enumeration.
var linuxDevicePrefixes = []string{"ttyUSB", "ttyACM", "ttyAMA", "rfcomm"}

// scanDevDir lists entries in dir with one of linuxDevicePrefixes.
func scanDevDir(fs afero.Fs, dir string) ([]string, error) {
	exists, err := afero.DirExists(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !exists {
		return []string{}, nil
	}

	files, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s directory: %w", dir, err)
	}

	devices := make([]string, 0, len(files))
	for _, v := range files {
		if v.IsDir() {
			continue
		}
		if !slices.ContainsFunc(linuxDevicePrefixes, func(p string) bool {
			return strings.HasPrefix(v.Name(), p)
		}) {
			continue
		}
		devices = append(devices, filepath.Join(dir, v.Name()))
	}

	return devices, nil
}

// mergeDevices returns the sorted union of both lists without duplicates.
func mergeDevices(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	slices.Sort(out)
	return slices.Compact(out)
}

// GetSerialDeviceList returns every serial device the driver can enumerate.
// On Linux the /dev scan adds USB and Bluetooth adapters the driver misses.
func GetSerialDeviceList() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports list: %w", err)
	}

	if runtime.GOOS != "linux" {
		return mergeDevices(ports, nil), nil
	}

	scanned, err := scanDevDir(afero.NewOsFs(), "/dev")
	if err != nil {
		log.Warn().Err(err).Msg("failed to scan /dev for serial devices")
		return mergeDevices(ports, nil), nil
	}
	return mergeDevices(ports, scanned), nil
}
