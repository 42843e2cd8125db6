package properties

const (
	defaultPSRedshifts = 60

	muvMin = -20.0
	muvMax = -10.0
)

var (
	defaultParameterKeys = []string{
		"F_STAR10",
		"ALPHA_STAR",
		"F_ESC10",
		"ALPHA_ESC",
		"M_TURN",
		"t_STAR",
		"L_X",
		"NU_X_THRESH",
		"X_RAY_SPEC_INDEX",
	}
	defaultParameterLabels = []string{
		`$\log_{10} f_{*,10}$`,
		`$\alpha_\ast$`,
		`$\log_{10} f_{\rm esc, 10}$`,
		`$\alpha_{\rm esc}$`,
		`$\log_{10}M_{\rm turn}$`,
		`$t_{\ast}$`,
		`$\log_{10}L_{\rm X<2keV}/{\rm SFR}$`,
		`$E_0$`,
		`$\alpha_{\rm X}$`,
	}
	defaultErrorKeys = []string{"PS_err", "Tb_err", "xHI_err", "Ts_err", "UVLFs_err", "UVLFs_logerr", "tau_err"}

	radioParameterKeys = []string{
		"fR_mini",
		"L_X_MINI",
		"F_STAR7_MINI",
		"F_ESC7_MINI",
		"A_LW",
	}
	radioParameterLabels = []string{
		`log$_{10}$ f$_{\rm R,mini}$`,
		`log$_{10}$L$_{\rm X, mini}$`,
		`log$_{10}$F$_{\ast,mini}$`,
		`log$_{10}$F$_{\rm esc, mini}$`,
		`A$_{\rm LW}$`,
	}
	radioLimits = []Limits{
		{Lo: -2, Hi: 6},
		{Lo: 33, Hi: 45},
		{Lo: -5, Hi: 0},
		{Lo: -6, Hi: -1},
		{Lo: 0, Hi: 10},
	}
	radioErrorKeys = []string{"PS_err", "Tb_err", "xHI_err", "Tr_err", "tau_err"}
)

// defaultMUVs is [-25, -16] in steps of 1 followed by [-15, -5] in steps of 0.5.
func defaultMUVs() []float64 {
	out := make([]float64, 0, 31)
	for m := -25.0; m < -15; m++ {
		out = append(out, m)
	}
	for m := -15.0; m < -4.5; m += 0.5 {
		out = append(out, m)
	}
	return out
}

func defaultSimulation() Simulation {
	return Simulation{
		UserParams: map[string]any{
			"BOX_LEN":                  250,
			"DIM":                      512,
			"HII_DIM":                  128,
			"USE_FFTW_WISDOM":          true,
			"HMF":                      1,
			"USE_RELATIVE_VELOCITIES":  false,
			"POWER_SPECTRUM":           0,
			"N_THREADS":                1,
			"PERTURB_ON_HIGH_RES":      false,
			"NO_RNG":                   false,
			"USE_INTERPOLATION_TABLES": true,
			"FAST_FCOLL_TABLES":        false,
			"USE_2LPT":                 true,
			"MINIMIZE_MEMORY":          false,
		},
		CosmoParams: map[string]float64{
			"SIGMA_8":     0.82,
			"hlittle":     0.6774,
			"OMm":         0.3075,
			"OMb":         0.0486,
			"POWER_INDEX": 0.97,
		},
		FlagOptions: map[string]bool{
			"USE_HALO_FIELD":          false,
			"USE_MINI_HALOS":          false,
			"USE_MASS_DEPENDENT_ZETA": true,
			"SUBCELL_RSD":             true,
			"INHOMO_RECO":             true,
			"USE_TS_FLUCT":            true,
			"M_MIN_in_Mass":           false,
			"PHOTON_CONS":             true,
			"FIX_VCB_AVG":             false,
		},
	}
}

func radioSimulation() Simulation {
	return Simulation{
		UserParams: map[string]any{
			"HII_DIM":                  50,
			"N_THREADS":                1,
			"USE_RELATIVE_VELOCITIES":  true,
			"USE_INTERPOLATION_TABLES": true,
			"FAST_FCOLL_TABLES":        true,
			"MINIMIZE_MEMORY":          false,
			"BOX_LEN":                  500,
		},
		CosmoParams: map[string]float64{
			"SIGMA_8":     0.8102,
			"hlittle":     0.6766,
			"OMm":         0.30964144154550644,
			"OMb":         0.04897468161869667,
			"POWER_INDEX": 0.9665,
		},
		FlagOptions: map[string]bool{
			"USE_MINI_HALOS":          true,
			"USE_MASS_DEPENDENT_ZETA": true,
			"INHOMO_RECO":             true,
			"USE_TS_FLUCT":            true,
			"USE_RADIO_ACG":           false,
			"USE_RADIO_MCG":           true,
			"Calibrate_EoR_feedback":  true,
		},
	}
}
