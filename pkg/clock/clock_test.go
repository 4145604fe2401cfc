package clock

import (
	"testing"
	"time"
)

func TestFakeTickerFiresOnAdvance(t *testing.T) {
	fc := NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	tk := fc.NewTicker(5 * time.Second)

	fc.Advance(4 * time.Second)
	select {
	case <-tk.C():
		t.Fatalf("ticker fired before period elapsed")
	default:
	}

	fc.Advance(2 * time.Second)
	select {
	case now := <-tk.C():
		if now.Second() != 5 {
			t.Fatalf("unexpected tick time %v", now)
		}
	default:
		t.Fatalf("expected tick after period elapsed")
	}
}

func TestFakeAfterExpires(t *testing.T) {
	fc := NewFake(time.Unix(0, 0))
	ch := fc.After(10 * time.Second)

	fc.Advance(9 * time.Second)
	select {
	case <-ch:
		t.Fatalf("timer expired early")
	default:
	}

	fc.Advance(time.Second)
	select {
	case <-ch:
	default:
		t.Fatalf("timer did not expire")
	}
}

func TestFakeStoppedTickerStaysSilent(t *testing.T) {
	fc := NewFake(time.Unix(0, 0))
	tk := fc.NewTicker(time.Second)
	tk.Stop()
	fc.Advance(5 * time.Second)
	select {
	case <-tk.C():
		t.Fatalf("stopped ticker fired")
	default:
	}
}
