package main

import (
	"os"

	"github.com/go-go-golems/streamchat/cmd/streamchat/listing"
	"github.com/go-go-golems/streamchat/pkg/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// settings is resolved once per invocation in PersistentPreRunE.
var settings *config.Settings

var rootCmd = &cobra.Command{
	Use:           "streamchat",
	Short:         "Terminal client for a streaming chat backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		s, err := config.Load(viper.New(), cmd.Flags(), configFile)
		if err != nil {
			return err
		}
		settings = s

		withCaller, _ := cmd.Flags().GetBool("with-caller")
		initLogger(s.LogLevel, withCaller)
		return nil
	},
}

func initLogger(level string, withCaller bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	if l, err := zerolog.ParseLevel(level); err == nil && level != "" {
		zerolog.SetGlobalLevel(l)
	}
	if withCaller {
		log.Logger = log.Logger.With().Caller().Logger()
	}
}

func main() {
	config.AddFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().Bool("with-caller", false, "Include caller (file:line) in logs")

	sessionsCmd := newSessionsCommand()
	rootCmd.AddCommand(
		newLoginCommand(),
		newRegisterCommand(),
		newWhoamiCommand(),
		newLogoutCommand(),
		sessionsCmd,
		newMessagesCommand(),
		newSendCommand(),
		newChatCommand(),
		newTUICommand(),
		newServeMockCommand(),
	)

	listing.AddToRootCommand(rootCmd, sessionsCmd, appSource{})

	cobra.CheckErr(rootCmd.Execute())
}
