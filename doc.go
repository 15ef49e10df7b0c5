// Package rgbkbd is a per-zone RGB keyboard lighting engine for
// ChromeOS devices exposing the ectool rgbkbd interface.
//
// The engine runs a fixed-rate tick loop that composes active effect
// instances into frames and hands them to a hardware abstraction
// layer for diffed, rate-limited, retried delivery to the embedded
// controller. Optional subsystems plug in around the loop: an audio
// analysis pipeline for sound-reactive effects, a Lua plugin sandbox,
// and a NATS relay that mirrors frames and accepts remote commands.
//
// Basic usage:
//
//	topo := topology.Default()
//	driver := hal.NewEctoolDriver(topo)
//	channel, err := hal.New(driver, topo, hal.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine, err := rgbkbd.NewEngine(rgbkbd.Config{}, topo, channel)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop(context.Background())
//
//	engine.ActivateEffect(rgbkbd.ActivateEffect{Kind: rgbkbd.EffectBreathing})
package rgbkbd
