/* Test fixture for the demodulators */
package main

import (
	viperwolf "github.com/doismellburning/viperwolf/src"
)

func main() {
	viperwolf.AtestMain()
}
