package listing

import "testing"

func TestInitializeUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.InitializeUser(f.maker, UserParams{})
	expectErr(t, err, ErrPlatformNotInitialized)
	f.initPlatform()

	self := f.maker
	_, err = f.engine.InitializeUser(f.maker, UserParams{Referrer: &self})
	expectErr(t, err, ErrInvalidReferrer)
	_, err = f.engine.InitializeUser(f.maker, UserParams{DefaultListingDuration: 10})
	expectErr(t, err, ErrDurationTooShort)
	_, err = f.engine.InitializeUser(f.maker, UserParams{DefaultSlippageBps: 10_001})
	expectErr(t, err, ErrInvalidSlippageTolerance)

	referrer := f.taker
	profile, err := f.engine.InitializeUser(f.maker, UserParams{Referrer: &referrer, DefaultListingDuration: 3_600, DefaultSlippageBps: 30})
	if err != nil {
		t.Fatalf("initialize user: %v", err)
	}
	if !profile.HasReferrer() || profile.Referrer != f.taker || profile.CreatedAt != testGenesisTime {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	_, err = f.engine.InitializeUser(f.maker, UserParams{})
	expectErr(t, err, ErrProfileAlreadyExists)
}

func TestUpdatePreferences(t *testing.T) {
	f := newFixture(t)
	f.initPlatform()
	_, err := f.engine.UpdatePreferences(f.maker, Preferences{DefaultSlippageBps: uint32Ptr(10)})
	expectErr(t, err, ErrProfileNotFound)

	if _, err := f.engine.InitializeUser(f.maker, UserParams{}); err != nil {
		t.Fatalf("initialize user: %v", err)
	}
	f.now += 30
	profile, err := f.engine.UpdatePreferences(f.maker, Preferences{DefaultListingDuration: int64Ptr(900)})
	if err != nil {
		t.Fatalf("update preferences: %v", err)
	}
	if profile.DefaultListingDuration != 900 || profile.DefaultSlippageBps != 0 || profile.LastActivityAt != testGenesisTime+30 {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	_, err = f.engine.UpdatePreferences(f.maker, Preferences{DefaultListingDuration: int64Ptr(3_000_000)})
	expectErr(t, err, ErrDurationTooLong)
	_, err = f.engine.UpdatePreferences(f.maker, Preferences{DefaultSlippageBps: uint32Ptr(20_000)})
	expectErr(t, err, ErrInvalidSlippageTolerance)
}

func TestTakerProfileCreatedLazily(t *testing.T) {
	f := newFixture(t)
	f.initPlatform()
	listing := f.createScenarioListing(1)
	if _, err := f.engine.Profile(f.taker); err == nil {
		t.Fatalf("taker has no profile before trading")
	}
	if _, err := f.engine.ExecuteSwap(f.taker, listing.Key, SwapParams{FillAmountSource: 100_000, MaxAmountDestination: 1_000_000}); err != nil {
		t.Fatalf("swap: %v", err)
	}
	profile := f.profile(f.taker)
	if profile.Owner != f.taker || profile.SwapsExecuted != 1 || profile.CreatedAt != testGenesisTime {
		t.Fatalf("unexpected lazily created profile: %+v", profile)
	}
}
