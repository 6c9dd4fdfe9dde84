package beacons_test

import (
	"context"
	"fmt"
	"os"

	"github.com/bft-labs/beacons/pkg/beacons"
)

// ExampleNew shows a manager with one saved beacon.
func ExampleNew() {
	dir, err := os.MkdirTemp("", "beacons-example")
	if err != nil {
		fmt.Println(err)
		return
	}
	defer os.RemoveAll(dir)

	m, err := beacons.New(beacons.Config{DataDir: dir, StoreDriver: beacons.StoreFile})
	if err != nil {
		fmt.Println(err)
		return
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		fmt.Println(err)
		return
	}
	defer m.Stop()

	info, err := m.Create(ctx, beacons.Spec{
		Kind:    beacons.KindEddystoneURL,
		Payload: beacons.PayloadData{URL: "https://example.com"},
		Name:    "lobby",
		Save:    true,
	})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(info.Ref, info.Desired)

	// Output: s:1 Stopped
}

// ExampleParseRef shows the accepted reference forms.
func ExampleParseRef() {
	for _, s := range []string{"s:12", "12", "e:6ba7b810-9dad-11d1-80b4-00c04fd430c8"} {
		ref, err := beacons.ParseRef(s)
		fmt.Println(ref, err)
	}

	// Output:
	// s:12 <nil>
	// s:12 <nil>
	// e:6ba7b810-9dad-11d1-80b4-00c04fd430c8 <nil>
}

type printer struct {
	beacons.BaseEventHandler
}

func (printer) OnBeaconEvent(e beacons.Event) {
	fmt.Println(e.Type, e.Identity, e.State)
}

// Example_withEventHandler shows how to receive beacon events.
func Example_withEventHandler() {
	m, err := beacons.New(beacons.Config{DataDir: os.TempDir()}, beacons.WithEventHandler(printer{}))
	if err != nil {
		fmt.Println(err)
		return
	}
	_ = m
}
