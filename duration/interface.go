/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package duration adds config-friendly parsing to time.Duration (viper
// stores idle timeouts and reconnection gaps as plain strings) and the
// reconnection backoff formula used by pool.
package duration

import (
	"math"
	"time"
)

// Duration is a time.Duration that unmarshals from config as either a
// Go duration string ("30s") or a bare integer number of seconds, the two
// shapes the teacher's config components accept for timeout fields.
type Duration time.Duration

func (d Duration) Time() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalText(b []byte) error {
	s := string(b)

	if v, err := time.ParseDuration(s); err == nil {
		*d = Duration(v)
		return nil
	}

	secs, err := time.ParseDuration(s + "s")
	if err != nil {
		return err
	}

	*d = Duration(secs)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ReconnectGap computes the delay before the next reconnection attempt.
//
// lag is the reconnect lag in seconds (pool passes its remaining retries
// minus one); gap is the pool's configured reconnecting_gap. The delay is
// gap*(ln(lag)+1), growing with the log of lag rather than lag itself; a
// lag under one second counts as one, giving the bare gap.
func ReconnectGap(gap time.Duration, lag time.Duration) time.Duration {
	if gap <= 0 {
		return 0
	}

	secs := lag.Seconds()
	if secs < 1 {
		secs = 1
	}

	factor := math.Log(secs) + 1
	return time.Duration(float64(gap) * factor)
}
