package cmd

import (
	"fmt"

	"github.com/urfave/cli"
)

func (a *App) completionCommand() cli.Command {
	return cli.Command{
		Name:      "completion",
		Usage:     "print a shell completion script",
		ArgsUsage: "<bash|zsh|fish>",
		Description: "Bash:  eval \"$(stegvault completion bash)\"\n" +
			"Zsh:   eval \"$(stegvault completion zsh)\"\n" +
			"Fish:  stegvault completion fish | source",
		Action: a.completion,
	}
}

func (a *App) completion(c *cli.Context) error {
	script, err := completionScript(c.Args().First())
	if err != nil {
		return err
	}
	fmt.Fprint(a.stdout, script)
	return nil
}

func completionScript(shell string) (string, error) {
	switch shell {
	case "bash":
		return bashCompletion, nil
	case "zsh":
		return zshCompletion, nil
	case "fish":
		return fishCompletion, nil
	default:
		return "", fmt.Errorf("unknown shell %q, supported: bash, zsh, fish", shell)
	}
}

const bashCompletion = `_stegvault() {
    local cur prev words cword
    _init_completion || return

    local commands="init hide reveal capacity status ls diff forget rm passwd compact keyring serve completion help"

    if [[ $cword -eq 1 ]]; then
        COMPREPLY=($(compgen -W "$commands" -- "$cur"))
        return
    fi

    case "${words[1]}" in
        hide)
            if [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "--output -o --message -m --file -f --no-encrypt --no-ledger" -- "$cur"))
            else
                _filedir
            fi
            ;;
        reveal)
            if [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "--output -o --legacy --force --keep-local --keep-both" -- "$cur"))
            else
                _filedir
            fi
            ;;
        passwd)
            if [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "--output -o --legacy --no-encrypt" -- "$cur"))
            else
                _filedir
            fi
            ;;
        capacity|diff)
            _filedir
            ;;
        forget|rm)
            local images
            images=$(stegvault ls 2>/dev/null | awk '/^  [*~!?-] /{print $2}')
            COMPREPLY=($(compgen -W "$images" -- "$cur"))
            ;;
        keyring)
            COMPREPLY=($(compgen -W "save delete status" -- "$cur"))
            ;;
        serve)
            COMPREPLY=($(compgen -W "--addr" -- "$cur"))
            ;;
        help)
            COMPREPLY=($(compgen -W "$commands" -- "$cur"))
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "$cur"))
            ;;
    esac
}

complete -F _stegvault stegvault
`

const zshCompletion = `#compdef stegvault

_stegvault() {
    local -a commands
    commands=(
        'init:Create an empty ledger'
        'hide:Embed a message or file in an image'
        'reveal:Recover the payload hidden in an image'
        'capacity:Show how much an image can hold'
        'status:List recorded images and check them'
        'ls:List recorded images and check them'
        'diff:Compare a hidden payload with a local file'
        'forget:Remove images from the ledger'
        'rm:Remove images from the ledger'
        'passwd:Re-encrypt an image under a new password'
        'compact:Compact the ledger'
        'keyring:Manage the stored password'
        'serve:Run the HTTP API'
        'completion:Print a shell completion script'
        'help:Show help'
    )

    _arguments -C \
        '1: :->command' \
        '*: :->args'

    case "$state" in
        command)
            _describe -t commands 'stegvault commands' commands
            ;;
        args)
            case "${words[2]}" in
                hide)
                    _arguments \
                        '(-o --output)'{-o,--output}'[Output image]:file:_files' \
                        '(-m --message)'{-m,--message}'[Text to hide]:message:' \
                        '(-f --file)'{-f,--file}'[File to hide]:file:_files' \
                        '--no-encrypt[Hide without a password]' \
                        '--no-ledger[Do not record the image]' \
                        '*:image:_files'
                    ;;
                reveal)
                    _arguments \
                        '(-o --output)'{-o,--output}'[Write payload here]:file:_files' \
                        '--legacy[Bare encrypted blob]' \
                        '--force[Overwrite existing file]' \
                        '--keep-local[Keep existing file]' \
                        '--keep-both[Save payload next to existing file]' \
                        '*:image:_files'
                    ;;
                capacity|diff|passwd)
                    _files
                    ;;
                forget|rm)
                    _arguments '*:image:_stegvault_images'
                    ;;
                keyring)
                    _values 'subcommand' save delete status
                    ;;
                help)
                    _describe -t commands 'stegvault commands' commands
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
            esac
            ;;
    esac
}

_stegvault_images() {
    local -a images
    images=(${(f)"$(stegvault ls 2>/dev/null | awk '/^  [*~!?-] /{print $2}')"})
    _describe -t images 'recorded images' images
}

_stegvault "$@"
`

const fishCompletion = `# stegvault fish completions

set -l commands init hide reveal capacity status ls diff forget rm passwd compact keyring serve completion help

complete -c stegvault -f

complete -c stegvault -n "not __fish_seen_subcommand_from $commands" -a init -d 'Create an empty ledger'
complete -c stegvault -n "not __fish_seen_subcommand_from $commands" -a hide -d 'Embed a payload in an image'
complete -c stegvault -n "not __fish_seen_subcommand_from $commands" -a reveal -d 'Recover a hidden payload'
complete -c stegvault -n "not __fish_seen_subcommand_from $commands" -a capacity -d 'Show image capacity'
complete -c stegvault -n "not __fish_seen_subcommand_from $commands" -a status -d 'Check recorded images'
complete -c stegvault -n "not __fish_seen_subcommand_from $commands" -a ls -d 'Check recorded images'
complete -c stegvault -n "not __fish_seen_subcommand_from $commands" -a diff -d 'Compare payload with a file'
complete -c stegvault -n "not __fish_seen_subcommand_from $commands" -a forget -d 'Remove images from the ledger'
complete -c stegvault -n "not __fish_seen_subcommand_from $commands" -a passwd -d 'Re-encrypt under a new password'
complete -c stegvault -n "not __fish_seen_subcommand_from $commands" -a compact -d 'Compact the ledger'
complete -c stegvault -n "not __fish_seen_subcommand_from $commands" -a keyring -d 'Manage the stored password'
complete -c stegvault -n "not __fish_seen_subcommand_from $commands" -a serve -d 'Run the HTTP API'
complete -c stegvault -n "not __fish_seen_subcommand_from $commands" -a completion -d 'Print completions'

complete -c stegvault -n "__fish_seen_subcommand_from hide" -s o -l output -r -F -d 'Output image'
complete -c stegvault -n "__fish_seen_subcommand_from hide" -s m -l message -r -d 'Text to hide'
complete -c stegvault -n "__fish_seen_subcommand_from hide" -s f -l file -r -F -d 'File to hide'
complete -c stegvault -n "__fish_seen_subcommand_from hide" -l no-encrypt -d 'Hide without a password'
complete -c stegvault -n "__fish_seen_subcommand_from hide" -l no-ledger -d 'Do not record the image'
complete -c stegvault -n "__fish_seen_subcommand_from hide capacity diff passwd reveal" -F

complete -c stegvault -n "__fish_seen_subcommand_from reveal" -s o -l output -r -F -d 'Write payload here'
complete -c stegvault -n "__fish_seen_subcommand_from reveal" -l legacy -d 'Bare encrypted blob'
complete -c stegvault -n "__fish_seen_subcommand_from reveal" -l force -d 'Overwrite existing file'
complete -c stegvault -n "__fish_seen_subcommand_from reveal" -l keep-local -d 'Keep existing file'
complete -c stegvault -n "__fish_seen_subcommand_from reveal" -l keep-both -d 'Keep both versions'

complete -c stegvault -n "__fish_seen_subcommand_from forget rm" -a "(stegvault ls 2>/dev/null | awk '/^  [*~!?-] /{print \$2}')"
complete -c stegvault -n "__fish_seen_subcommand_from keyring" -a "save delete status"
complete -c stegvault -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
complete -c stegvault -n "__fish_seen_subcommand_from help" -a "$commands"
`
