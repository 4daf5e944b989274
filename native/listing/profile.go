package listing

import "fmt"

// UserParams carries the optional settings supplied when a participant
// registers explicitly.
type UserParams struct {
	Referrer               *[20]byte
	DefaultListingDuration int64
	DefaultSlippageBps     uint32
}

// Preferences lists the per-user defaults a profile owner may change. Nil
// fields are left untouched.
type Preferences struct {
	DefaultListingDuration *int64
	DefaultSlippageBps     *uint32
}

func validateDefaults(cfg *PlatformConfig, duration int64, slippage uint32) error {
	if duration < 0 {
		return fmt.Errorf("%w: negative default duration", ErrDurationTooShort)
	}
	if duration != 0 && cfg != nil {
		if err := ValidateDuration(cfg, duration); err != nil {
			return err
		}
	}
	return validateSlippage(slippage)
}

// InitializeUser registers caller's profile. Profiles are otherwise created
// lazily by the first listing or swap.
func (e *Engine) InitializeUser(caller [20]byte, params UserParams) (*UserProfile, error) {
	var result *UserProfile
	err := e.execute("user_initialize", func(c *opContext) error {
		cfg, err := c.loadConfig()
		if err != nil {
			return err
		}
		if _, exists, err := c.loadProfile(caller); err != nil {
			return err
		} else if exists {
			return ErrProfileAlreadyExists
		}
		profile := &UserProfile{Owner: caller, CreatedAt: c.now, LastActivityAt: c.now}
		if params.Referrer != nil && *params.Referrer != ([20]byte{}) {
			if *params.Referrer == caller {
				return fmt.Errorf("%w: self referral", ErrInvalidReferrer)
			}
			profile.Referrer = *params.Referrer
		}
		if err := validateDefaults(cfg, params.DefaultListingDuration, params.DefaultSlippageBps); err != nil {
			return err
		}
		profile.DefaultListingDuration = params.DefaultListingDuration
		profile.DefaultSlippageBps = params.DefaultSlippageBps
		if err := c.storeProfile(profile); err != nil {
			return err
		}
		c.emit(newProfileEvent(EventTypeProfileCreated, profile))
		result = profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdatePreferences changes the owner's listing defaults.
func (e *Engine) UpdatePreferences(caller [20]byte, prefs Preferences) (*UserProfile, error) {
	var result *UserProfile
	err := e.execute("user_updatePreferences", func(c *opContext) error {
		cfg, err := c.loadConfig()
		if err != nil {
			return err
		}
		profile, exists, err := c.loadProfile(caller)
		if err != nil {
			return err
		}
		if !exists {
			return ErrProfileNotFound
		}
		if prefs.DefaultListingDuration != nil {
			if err := validateDefaults(cfg, *prefs.DefaultListingDuration, 0); err != nil {
				return err
			}
			profile.DefaultListingDuration = *prefs.DefaultListingDuration
		}
		if prefs.DefaultSlippageBps != nil {
			if err := validateSlippage(*prefs.DefaultSlippageBps); err != nil {
				return err
			}
			profile.DefaultSlippageBps = *prefs.DefaultSlippageBps
		}
		profile.LastActivityAt = c.now
		if err := c.storeProfile(profile); err != nil {
			return err
		}
		c.emit(newProfileEvent(EventTypeProfileUpdated, profile))
		result = profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
