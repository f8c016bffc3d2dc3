//go:build !nogpu

package gpu

import _ "github.com/gogpu/wgpu/hal/allbackends" // platform backends for Open
