package main

import (
	"errors"
	"testing"

	"sag-go/internal/sag"
)

func TestReadNewPassword_FromEnv(t *testing.T) {
	t.Run("uses the variable", func(t *testing.T) {
		t.Setenv(envPassword, "hunter2")

		pw, err := readNewPassword("Password: ")
		if err != nil {
			t.Fatalf("readNewPassword() error = %v", err)
		}
		if pw != "hunter2" {
			t.Errorf("readNewPassword() = %q, want %q", pw, "hunter2")
		}
	})

	t.Run("rejects an empty variable", func(t *testing.T) {
		t.Setenv(envPassword, "")

		pw, err := readNewPassword("Password: ")
		if !errors.Is(err, errEmptyPassword) {
			t.Fatalf("readNewPassword() error = %v, want errEmptyPassword", err)
		}
		if pw != "" {
			t.Errorf("readNewPassword() = %q, want empty", pw)
		}
	})
}

func TestWithPassword(t *testing.T) {
	t.Run("plain container needs no password", func(t *testing.T) {
		t.Setenv(envPassword, "unused")
		var tried []string
		err := withPassword("c.json", func(pw string) error {
			tried = append(tried, pw)
			return nil
		})
		if err != nil {
			t.Fatalf("withPassword() error = %v", err)
		}
		if len(tried) != 1 || tried[0] != "" {
			t.Errorf("passwords tried = %q, want one empty attempt", tried)
		}
	})

	t.Run("encrypted container uses the variable", func(t *testing.T) {
		t.Setenv(envPassword, "hunter2")
		var tried []string
		err := withPassword("c.json", func(pw string) error {
			tried = append(tried, pw)
			if pw == "" {
				return sag.ErrPasswordRequired
			}
			return nil
		})
		if err != nil {
			t.Fatalf("withPassword() error = %v", err)
		}
		if len(tried) != 2 || tried[1] != "hunter2" {
			t.Errorf("passwords tried = %q", tried)
		}
	})

	t.Run("wrong variable is tried once", func(t *testing.T) {
		t.Setenv(envPassword, "wrong")
		calls := 0
		err := withPassword("c.json", func(pw string) error {
			calls++
			if pw == "" {
				return sag.ErrPasswordRequired
			}
			return sag.ErrInvalidPassword
		})
		if !errors.Is(err, sag.ErrInvalidPassword) {
			t.Errorf("withPassword() error = %v, want ErrInvalidPassword", err)
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})
}
