//go:build !linux

package main

import (
	"errors"

	"eeprobe-go/iic"
)

func newPlatformProvider(devs []int) (iic.Provider, func(), error) {
	return nil, nil, errors.New("hardware adapters need linux i2c-dev; use --sim")
}
