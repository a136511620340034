/*
Copyright (c) hostp2pd authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package enroller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hostp2pd/hostp2pd/config"
	"github.com/hostp2pd/hostp2pd/event"
	"github.com/hostp2pd/hostp2pd/lineio"
)

func boolPtr(b bool) *bool { return &b }

func TestHandleEnrolleeSeenIssuesPBCWhenWhiteListed(t *testing.T) {
	ch, err := lineio.Spawn("cat")
	require.NoError(t, err)
	defer ch.Close()

	cfg := config.DefaultConfig()
	cfg.PBCInUse = boolPtr(true)
	cfg.PBCWhiteList = []string{"phone1"}

	handleEnrolleeSeen(cfg, ch, event.Event{MAC: "aa:bb:cc:dd:ee:ff", Name: "phone1"})

	line, err := ch.ReadLine(time.Second)
	require.NoError(t, err)
	require.Equal(t, "wps_pbc aa:bb:cc:dd:ee:ff", line)
}

func TestHandleEnrolleeSeenRefusesPBCWhenNotWhiteListed(t *testing.T) {
	ch, err := lineio.Spawn("cat")
	require.NoError(t, err)
	defer ch.Close()

	cfg := config.DefaultConfig()
	cfg.PBCInUse = boolPtr(true)
	cfg.PBCWhiteList = []string{"phone1"}

	handleEnrolleeSeen(cfg, ch, event.Event{MAC: "11:22:33:44:55:66", Name: "intruder"})

	_, err = ch.ReadLine(50 * time.Millisecond)
	require.ErrorIs(t, err, lineio.ErrTimeout, "no wps_pbc must be written for a non-white-listed peer")
}

func TestHandleEnrolleeSeenFallsBackToPIN(t *testing.T) {
	ch, err := lineio.Spawn("cat")
	require.NoError(t, err)
	defer ch.Close()

	cfg := config.DefaultConfig()
	cfg.PBCInUse = boolPtr(false)
	cfg.PIN = "12345670"

	handleEnrolleeSeen(cfg, ch, event.Event{MAC: "aa:bb:cc:dd:ee:ff", Name: "phone1"})

	line, err := ch.ReadLine(time.Second)
	require.NoError(t, err)
	require.Equal(t, "wps_pin aa:bb:cc:dd:ee:ff 12345670", line)
}

func TestHandleEnrolleeSeenIgnoresEventWithoutMAC(t *testing.T) {
	ch, err := lineio.Spawn("cat")
	require.NoError(t, err)
	defer ch.Close()

	cfg := config.DefaultConfig()
	cfg.PBCInUse = boolPtr(true)

	handleEnrolleeSeen(cfg, ch, event.Event{Name: "phone1"})

	_, err = ch.ReadLine(50 * time.Millisecond)
	require.ErrorIs(t, err, lineio.ErrTimeout)
}
