// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18x20_test

import (
	"fmt"
	"log"
	"time"

	"github.com/GermanBionicSystems/uart1wire/ds18x20"
	"github.com/GermanBionicSystems/uart1wire/owuart"
	"github.com/GermanBionicSystems/uart1wire/serialchan"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Example shows how to read all the sensors on a bus with a single
// conversion.
func Example() {
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}
	ch, err := serialchan.Open("/dev/ttyUSB0", nil)
	if err != nil {
		log.Fatal(err)
	}
	bus := owuart.New(ch, nil)
	defer bus.Close()

	addrs, err := bus.Search(false)
	if err != nil {
		log.Fatal(err)
	}
	if err := ds18x20.StartAll(bus); err != nil {
		log.Fatal(err)
	}
	time.Sleep(ds18x20.ConversionTime(12))
	for _, a := range addrs {
		raw, err := ds18x20.ReadRaw(bus, &a, true)
		if err != nil {
			log.Printf("%s: %v", owuart.FromAddress(a), err)
			continue
		}
		fmt.Printf("%s: %.2f°C\n", owuart.FromAddress(a), ds18x20.DecodeCelsius(raw))
	}
}

// ExampleDev shows a single sensor used as a physic.SenseEnv.
func ExampleDev() {
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}
	ch, err := serialchan.Open("/dev/ttyUSB0", nil)
	if err != nil {
		log.Fatal(err)
	}
	bus := owuart.New(ch, nil)
	defer bus.Close()

	rom, err := owuart.ParseROM("28:AC:41:0E:07:00:00:74")
	if err != nil {
		log.Fatal(err)
	}
	dev, err := ds18x20.New(bus, rom.Address(), &ds18x20.Opts{Variant: ds18x20.Sixteenths, ResolutionBits: 10})
	if err != nil {
		log.Fatal(err)
	}
	defer dev.Halt()

	env := physic.Env{}
	for range 10 {
		if err := dev.Sense(&env); err != nil {
			log.Println(err)
		} else {
			log.Printf("%s: %s", dev, env.Temperature)
		}
		time.Sleep(time.Second)
	}
}

func ExampleDecodeCelsius() {
	fmt.Println(ds18x20.DecodeCelsius(ds18x20.Raw{0x50, 0x00}))
	fmt.Println(ds18x20.DecodeCelsius(ds18x20.Raw{0x50, 0xFF}))
	// Output:
	// 5
	// -10
}
