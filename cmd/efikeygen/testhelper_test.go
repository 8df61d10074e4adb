package main

import (
	"bytes"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// executeCommand executes a Cobra command with the given args and returns output.
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	err = root.Execute()
	return buf.String(), err
}

// resetGenerateFlags restores flag state between test runs. Cobra retains
// both the values and the changed markers across Execute calls.
func resetGenerateFlags() {
	genIsCA = false
	genSelfSign = false
	genCommonName = ""
	genIssuerURL = ""
	genSerial = "0"
	genOutput = "signed.cer"
	genPubkeyFile = ""
	genAlgorithm = string(defaultAlgorithm)
	genKeyOut = ""
	genPrivkeyOut = ""
	genP12Password = ""
	genSignerCert = ""
	genSignerKey = ""
	genPassphrase = ""
	genTokenConfig = ""
	genSignerLabel = ""

	rootCmd.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
}
