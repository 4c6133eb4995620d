// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package probe

import (
	"github.com/adaptyst-project/adaptyst-go/internal/errs"
	"github.com/adaptyst-project/adaptyst-go/internal/session"
)

// Vendor is a detected x86 CPU vendor relevant to the CARM roofline
// bundle. Roofline is only supported for these two.
type Vendor string

const (
	VendorIntel   Vendor = "intel"
	VendorAMD     Vendor = "amd"
	VendorUnknown Vendor = "unknown"
)

// carmIntelEvents and carmAMDEvents are the exact event-name/title pairs
// entrypoint.cpp's BOOST_ARCH_X86 block wires up for cache-aware roofline
// analysis, one bundle per vendor.
var carmIntelEvents = []session.ExtraEvent{
	{Name: "fp_arith_inst_retired.scalar_single", Title: "CARM_INTEL_SSP"},
	{Name: "fp_arith_inst_retired.scalar_double", Title: "CARM_INTEL_SDP"},
	{Name: "fp_arith_inst_retired.128b_packed_single", Title: "CARM_INTEL_SSESP"},
	{Name: "fp_arith_inst_retired.128b_packed_double", Title: "CARM_INTEL_SSEDP"},
	{Name: "fp_arith_inst_retired.256b_packed_single", Title: "CARM_INTEL_AVX2SP"},
	{Name: "fp_arith_inst_retired.256b_packed_double", Title: "CARM_INTEL_AVX2DP"},
	{Name: "fp_arith_inst_retired.512b_packed_single", Title: "CARM_INTEL_AVX512SP"},
	{Name: "fp_arith_inst_retired.512b_packed_double", Title: "CARM_INTEL_AVX512DP"},
	{Name: "mem_inst_retired.any", Title: "CARM_INTEL_MEM_LDST"},
}

var carmAMDEvents = []session.ExtraEvent{
	{Name: "retired_sse_avx_operations:sp_mult_add_flops", Title: "CARM_AMD_SPFMA"},
	{Name: "retired_sse_avx_operations:dp_mult_add_flops", Title: "CARM_AMD_DPFMA"},
	{Name: "retired_sse_avx_operations:sp_add_sub_flops", Title: "CARM_AMD_SPADD"},
	{Name: "retired_sse_avx_operations:dp_add_sub_flops", Title: "CARM_AMD_DPADD"},
	{Name: "retired_sse_avx_operations:sp_mult_flops", Title: "CARM_AMD_SPMUL"},
	{Name: "retired_sse_avx_operations:dp_mult_flops", Title: "CARM_AMD_DPMUL"},
	{Name: "retired_sse_avx_operations:sp_div_flops", Title: "CARM_AMD_SPDIV"},
	{Name: "retired_sse_avx_operations:dp_div_flops", Title: "CARM_AMD_DPDIV"},
	{Name: "ls_dispatch:ld_dispatch", Title: "CARM_AMD_LD"},
	{Name: "ls_dispatch:store_dispatch", Title: "CARM_AMD_STORE"},
}

// CARMBundle returns the vendor-specific roofline event bundle at the
// given sampling frequency, per spec.md §4.5 step 4. Any vendor other
// than Intel/AMD is an EnvError, matching the original's hard exit.
func CARMBundle(vendor Vendor, freq uint64) ([]session.ExtraEvent, error) {
	var table []session.ExtraEvent
	switch vendor {
	case VendorIntel:
		table = carmIntelEvents
	case VendorAMD:
		table = carmAMDEvents
	default:
		return nil, errs.Env(nil, "roofline profiling is only supported on Intel or AMD CPUs, detected %q", vendor)
	}

	out := make([]session.ExtraEvent, len(table))
	for i, ev := range table {
		out[i] = session.ExtraEvent{Name: ev.Name, Period: freq, Title: ev.Title}
	}
	return out, nil
}
