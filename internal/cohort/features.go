package cohort

// asegColumns are the subcortical volumes from FreeSurfer's aseg.stats.
var asegColumns = []string{
	"Left-Lateral-Ventricle",
	"Left-Inf-Lat-Vent",
	"Left-Cerebellum-White-Matter",
	"Left-Cerebellum-Cortex",
	"Left-Thalamus-Proper",
	"Left-Caudate",
	"Left-Putamen",
	"Left-Pallidum",
	"3rd-Ventricle",
	"4th-Ventricle",
	"Brain-Stem",
	"Left-Hippocampus",
	"Left-Amygdala",
	"CSF",
	"Left-Accumbens-area",
	"Left-VentralDC",
	"Right-Lateral-Ventricle",
	"Right-Inf-Lat-Vent",
	"Right-Cerebellum-White-Matter",
	"Right-Cerebellum-Cortex",
	"Right-Thalamus-Proper",
	"Right-Caudate",
	"Right-Putamen",
	"Right-Pallidum",
	"Right-Hippocampus",
	"Right-Amygdala",
	"Right-Accumbens-area",
	"Right-VentralDC",
	"CC_Posterior",
	"CC_Mid_Posterior",
	"CC_Central",
	"CC_Mid_Anterior",
	"CC_Anterior",
}

// dkRegions are the Desikan-Killiany cortical parcels.
var dkRegions = []string{
	"bankssts", "caudalanteriorcingulate", "caudalmiddlefrontal", "cuneus",
	"entorhinal", "fusiform", "inferiorparietal", "inferiortemporal",
	"isthmuscingulate", "lateraloccipital", "lateralorbitofrontal", "lingual",
	"medialorbitofrontal", "middletemporal", "parahippocampal", "paracentral",
	"parsopercularis", "parsorbitalis", "parstriangularis", "pericalcarine",
	"postcentral", "posteriorcingulate", "precentral", "precuneus",
	"rostralanteriorcingulate", "rostralmiddlefrontal", "superiorfrontal",
	"superiorparietal", "superiortemporal", "supramarginal", "frontalpole",
	"temporalpole", "transversetemporal", "insula",
}

// DefaultFeatures returns the 101 region volume columns the normative model
// was trained on: aseg volumes followed by left then right cortical volumes.
func DefaultFeatures() []string {
	out := make([]string, 0, len(asegColumns)+2*len(dkRegions))
	out = append(out, asegColumns...)
	for _, hemi := range []string{"lh", "rh"} {
		for _, r := range dkRegions {
			out = append(out, hemi+"_"+r+"_volume")
		}
	}
	return out
}
