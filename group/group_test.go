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

package group

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hostp2pd/hostp2pd/event"
)

// fakeChannel is an in-memory Channel used to drive Transactor without a
// real pty.
type fakeChannel struct {
	written  []string
	incoming []string
	pushback []string
}

func (f *fakeChannel) WriteLine(s string) { f.written = append(f.written, s) }

func (f *fakeChannel) ReadLine(time.Duration) (string, error) {
	if n := len(f.pushback); n > 0 {
		line := f.pushback[n-1]
		f.pushback = f.pushback[:n-1]
		return line, nil
	}
	if len(f.incoming) == 0 {
		return "", errTestEOF
	}
	line := f.incoming[0]
	f.incoming = f.incoming[1:]
	return line, nil
}

func (f *fakeChannel) Pushback(line string) { f.pushback = append(f.pushback, line) }

type testErr string

func (e testErr) Error() string { return string(e) }

const errTestEOF = testErr("no more input")

func TestRemoveGroupSucceeds(t *testing.T) {
	ch := &fakeChannel{incoming: []string{"P2P-GROUP-REMOVED p2p-wlan0-0 GO reason=REQUESTED", "PONG"}}
	tr := New(ch, time.Second, nil, 0)
	removed, err := tr.RemoveGroup("p2p-wlan0-0")
	require.NoError(t, err)
	require.True(t, removed)
	require.Equal(t, []string{"p2p_group_remove p2p-wlan0-0", "ping"}, ch.written)
}

func TestRemoveGroupPushesBackUnrelatedEvents(t *testing.T) {
	ch := &fakeChannel{incoming: []string{
		"P2P-DEVICE-FOUND aa:bb:cc:dd:ee:ff",
		"P2P-GROUP-REMOVED p2p-wlan0-0 GO reason=REQUESTED",
	}}
	tr := New(ch, time.Second, nil, 0)
	removed, err := tr.RemoveGroup("p2p-wlan0-0")
	require.NoError(t, err)
	require.True(t, removed)
	require.Equal(t, []string{"P2P-DEVICE-FOUND aa:bb:cc:dd:ee:ff"}, ch.pushback)
}

func TestRunEndsOnPongEvenWithoutMatch(t *testing.T) {
	ch := &fakeChannel{incoming: []string{"PONG"}}
	tr := New(ch, time.Second, nil, 0)
	err := tr.Run([]string{"p2p_find"}, func(ev event.Event) (bool, bool) {
		return false, false
	})
	require.NoError(t, err)
}

func TestListNetworksFiltersPersistentOnly(t *testing.T) {
	ch := &fakeChannel{incoming: []string{
		"0\tDIRECT-ab\t\t[P2P-PERSISTENT]",
		"1\tother\t\t[DISABLED]",
		"PONG",
	}}
	tr := New(ch, time.Second, nil, 0)
	nets, err := tr.ListNetworks()
	require.NoError(t, err)
	require.Equal(t, []Network{{ID: 0, SSID: "DIRECT-ab", Flags: "[P2P-PERSISTENT]"}}, nets)
}

func TestStartPersistentWithID(t *testing.T) {
	ch := &fakeChannel{incoming: []string{`P2P-GROUP-STARTED p2p-wlan0-0 GO ssid="DIRECT-xy"`, "PONG"}}
	tr := New(ch, time.Second, nil, 0)
	id := 2
	ssid, err := tr.StartPersistent(&id, "")
	require.NoError(t, err)
	require.Equal(t, "DIRECT-xy", ssid)
	require.Equal(t, []string{"p2p_group_add persistent=2", "ping"}, ch.written)
}

func TestAnalyzeExistingGroupComparesSSIDNotSubstring(t *testing.T) {
	ch := &fakeChannel{incoming: []string{"ssid=DIRECT-x", "PONG"}}
	tr := New(ch, time.Second, nil, 0)
	found, err := tr.AnalyzeExistingGroup("p2p-wlan0-0", "p2p-dev-wlan0", "DIRECT-xy")
	require.NoError(t, err)
	require.Empty(t, found, "DIRECT-x must not match DIRECT-xy even though it is a prefix")
}

func TestTransactionTimesOutWhenNoResponseArrives(t *testing.T) {
	ch := &fakeChannel{}
	tr := New(ch, time.Second, nil, 0)
	_, err := tr.RemoveGroup("p2p-wlan0-0")
	require.ErrorIs(t, err, ErrTransactionTimeout)
}

func TestControlClientErrorsCountTowardsFatalThreshold(t *testing.T) {
	wpaErrors := 0
	ch := &fakeChannel{incoming: []string{
		"Could not connect to wpa_supplicant",
		"Could not connect to wpa_supplicant",
		"PONG",
	}}
	tr := New(ch, time.Second, &wpaErrors, 1)
	_, err := tr.RemoveGroup("p2p-wlan0-0")
	require.ErrorIs(t, err, ErrTooManyFailures)
	require.Equal(t, 2, wpaErrors)
}

func TestInProcessEnrolSwitchesWaitsThenSwitchesBack(t *testing.T) {
	ch := &fakeChannel{incoming: []string{
		"WPS-ENROLLEE-SEEN ee:54:44:24:70:df 93430999 name='testphone'",
		"PONG",
	}}
	tr := New(ch, time.Second, nil, 0)
	err := tr.InProcessEnrol("p2p-wlan0-0", "p2p-dev-wlan0", "ee:54:44:24:70:df", "00000000", false)
	require.NoError(t, err)
	require.Equal(t, []string{
		"interface p2p-wlan0-0",
		"wps_pin ee:54:44:24:70:df 00000000",
		"interface p2p-dev-wlan0",
		"ping",
	}, ch.written)
}

func TestInProcessEnrolPBCIssuesWpsPbc(t *testing.T) {
	ch := &fakeChannel{incoming: []string{
		"WPS-ENROLLEE-SEEN aa:bb:cc:dd:ee:ff 93430999 name='phone1'",
		"PONG",
	}}
	tr := New(ch, time.Second, nil, 0)
	err := tr.InProcessEnrol("p2p-wlan0-0", "p2p-dev-wlan0", "aa:bb:cc:dd:ee:ff", "", true)
	require.NoError(t, err)
	require.Equal(t, []string{
		"interface p2p-wlan0-0",
		"wps_pbc aa:bb:cc:dd:ee:ff",
		"interface p2p-dev-wlan0",
		"ping",
	}, ch.written)
}

func TestInProcessEnrolPushesBackUnrelatedEvents(t *testing.T) {
	ch := &fakeChannel{incoming: []string{
		"P2P-DEVICE-FOUND 11:22:33:44:55:66",
		"WPS-ENROLLEE-SEEN ee:54:44:24:70:df 93430999 name='testphone'",
		"PONG",
	}}
	tr := New(ch, time.Second, nil, 0)
	err := tr.InProcessEnrol("p2p-wlan0-0", "p2p-dev-wlan0", "ee:54:44:24:70:df", "00000000", false)
	require.NoError(t, err)
	require.Equal(t, []string{"P2P-DEVICE-FOUND 11:22:33:44:55:66"}, ch.pushback)
}

func TestInProcessEnrolTimesOutWithoutEnrolleeSeen(t *testing.T) {
	ch := &fakeChannel{}
	tr := New(ch, 50*time.Millisecond, nil, 0)
	err := tr.InProcessEnrol("p2p-wlan0-0", "p2p-dev-wlan0", "ee:54:44:24:70:df", "00000000", false)
	require.ErrorIs(t, err, ErrTransactionTimeout)
	require.Equal(t, []string{
		"interface p2p-wlan0-0",
		"interface p2p-dev-wlan0",
		"ping",
	}, ch.written, "no wps_pin is issued if the peer never shows up, but the interface is still switched back")
}

func TestCountActiveSessionsCountsMacShapedLines(t *testing.T) {
	ch := &fakeChannel{incoming: []string{
		"aa:bb:cc:dd:ee:ff",
		"11:22:33:44:55:66",
		"PONG",
	}}
	tr := New(ch, time.Second, nil, 0)
	n, err := tr.CountActiveSessions()
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
