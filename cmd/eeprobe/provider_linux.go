//go:build linux

package main

import (
	"eeprobe-go/i2cdev"
	"eeprobe-go/iic"
)

func newPlatformProvider(devs []int) (iic.Provider, func(), error) {
	p := i2cdev.NewProvider(devs)
	return p, func() { _ = p.Close() }, nil
}
