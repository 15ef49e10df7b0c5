// Package effects provides the built-in effect generators and the
// blend functions used to compose their output.
//
// Generators are pure functions of effect-local time where possible;
// the stateful ones (Reactive, AntiReactive) keep only per-instance
// fade state. All generators are deterministic: random-looking
// effects derive their choices from a seed parameter, so two engines
// given the same commands render identical frames.
package effects
