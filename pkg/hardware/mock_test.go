package hardware

import (
	"sync"
	"testing"
)

func TestMockGPIO(t *testing.T) {
	gpio := NewMockGPIO()

	t.Run("Initialization", func(t *testing.T) {
		err := gpio.Initialize()
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		value, _ := gpio.GetPin(PinMorseKey)
		if !value {
			t.Error("Expected morse key to start high")
		}
	})

	t.Run("Set and Get Pin", func(t *testing.T) {
		if err := gpio.SetPin(PinUSB, true); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		value, err := gpio.GetPin(PinUSB)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if !value {
			t.Error("Expected pin to be high")
		}

		if err := gpio.SetPin(PinUSB, false); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		value, _ = gpio.GetPin(PinUSB)
		if value {
			t.Error("Expected pin to be low")
		}
	})

	t.Run("Unset Pin Reads Low", func(t *testing.T) {
		value, err := gpio.GetPin(Pin("spare"))
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if value {
			t.Error("Expected unset pin to read low")
		}
	})

	t.Run("History", func(t *testing.T) {
		history := gpio.History()
		if len(history) != 2 {
			t.Fatalf("Expected 2 recorded changes, got %d", len(history))
		}
		if history[0] != (PinChange{Pin: PinUSB, Value: true}) {
			t.Errorf("Unexpected first change %+v", history[0])
		}
	})

	t.Run("Concurrent Access", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(on bool) {
				defer wg.Done()
				gpio.SetPin(PinLight, on)
				gpio.GetPin(PinLight)
			}(i%2 == 0)
		}
		wg.Wait()

		if len(gpio.History()) != 12 {
			t.Errorf("Expected 12 recorded changes, got %d", len(gpio.History()))
		}
	})

	t.Run("Close", func(t *testing.T) {
		if err := gpio.Close(); err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
	})
}
