package gatt

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Characteristics of the beacon service, in registry order.
const (
	Greeting CharID = iota // read + write
	Inbox                  // write only
	Button                 // read + write + notify
)

// Fixed payloads. All 20 bytes of GreetingText are served; firmware that
// reported a length of 17 truncated the reply, which was a bug.
const (
	GreetingText     = "Hello Bare-Metal BLE"
	ButtonText       = "Hola!"
	NotificationText = "Notification"
)

// DefaultAdvertisedUUID16 is the 16-bit service UUID placed in advertisements.
const DefaultAdvertisedUUID16 = 0x1809

// BeaconUUIDs are the 128-bit UUIDs of the beacon service.
type BeaconUUIDs struct {
	Service  uuid.UUID
	Greeting uuid.UUID
	Inbox    uuid.UUID
	Button   uuid.UUID
}

// DefaultBeaconUUIDs returns the factory UUIDs.
func DefaultBeaconUUIDs() BeaconUUIDs {
	return BeaconUUIDs{
		Service:  uuid.MustParse("937312e0-2354-11eb-9f10-fbc30a62cf38"),
		Greeting: uuid.MustParse("947312e0-2354-11eb-9f10-fbc30a62cf38"),
		Inbox:    uuid.MustParse("957312e0-2354-11eb-9f10-fbc30a62cf38"),
		Button:   uuid.MustParse("987312e0-2354-11eb-9f10-fbc30a62cf38"),
	}
}

// NewBeaconRegistry builds the three-characteristic beacon table. Writes are
// accepted unconditionally and reported to log.
func NewBeaconRegistry(ids BeaconUUIDs, log logrus.FieldLogger) (*Registry, error) {
	greeting := NewFixedValue(GreetingText)
	button := NewFixedValue(ButtonText)

	logWrite := func(name string) WriteFunc {
		return func(offset int, data []byte) {
			log.WithFields(logrus.Fields{
				"characteristic": name,
				"offset":         offset,
				"len":            len(data),
			}).Infof("received write: % x", data)
		}
	}

	reg, err := NewRegistry(ids.Service,
		Characteristic{
			Name:  "greeting",
			UUID:  ids.Greeting,
			Props: PropRead | PropWrite,
			Read:  greeting.ReadFunc(),
			Write: logWrite("greeting"),
		},
		Characteristic{
			Name:  "inbox",
			UUID:  ids.Inbox,
			Props: PropWrite,
			Write: logWrite("inbox"),
		},
		Characteristic{
			Name:  "button",
			UUID:  ids.Button,
			Props: PropRead | PropWrite | PropNotify,
			Read:  button.ReadFunc(),
			Write: logWrite("button"),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("build beacon registry: %w", err)
	}
	return reg, nil
}
