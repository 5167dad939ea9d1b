package cmd

import (
	"fmt"
	"os"
)

// Completion outputs shell completion scripts
func Completion(shell string) {
	switch shell {
	case "bash":
		fmt.Print(bashCompletion)
	case "zsh":
		fmt.Print(zshCompletion)
	case "fish":
		fmt.Print(fishCompletion)
	default:
		fmt.Fprintf(os.Stderr, "Unknown shell: %s\nSupported: bash, zsh, fish\n", shell)
		os.Exit(1)
	}
}

const bashCompletion = `_lockvault() {
    local cur prev words cword
    _init_completion || return

    local commands="init unlock add ls show edit rm passwd audit generate export import push pull merge adopt clear credentials compact status keyring help completion"

    if [[ $cword -eq 1 ]]; then
        COMPREPLY=($(compgen -W "$commands" -- "$cur"))
        return
    fi

    local cmd="${words[1]}"
    case "$cmd" in
        add)
            COMPREPLY=($(compgen -W "-title -username -website -url -category -tags -notes -favorite -generate -edit" -- "$cur"))
            ;;
        ls)
            COMPREPLY=($(compgen -W "-favorites" -- "$cur"))
            ;;
        show)
            COMPREPLY=($(compgen -W "-reveal" -- "$cur"))
            ;;
        rm|clear|adopt)
            COMPREPLY=($(compgen -W "-force" -- "$cur"))
            ;;
        generate)
            COMPREPLY=($(compgen -W "-length -no-upper -no-lower -no-digits -no-symbols" -- "$cur"))
            ;;
        export|import)
            _filedir
            ;;
        merge)
            COMPREPLY=($(compgen -W "-dry-run" -- "$cur"))
            ;;
        credentials)
            if [[ $cword -eq 2 ]]; then
                COMPREPLY=($(compgen -W "export import" -- "$cur"))
            elif [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "-discard-local" -- "$cur"))
            else
                _filedir
            fi
            ;;
        keyring)
            COMPREPLY=($(compgen -W "save delete status" -- "$cur"))
            ;;
        help)
            COMPREPLY=($(compgen -W "$commands" -- "$cur"))
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "$cur"))
            ;;
    esac
}

complete -F _lockvault lockvault
`

const zshCompletion = `#compdef lockvault

_lockvault() {
    local -a commands
    commands=(
        'init:Create a new vault'
        'unlock:Check the master password'
        'add:Add an entry'
        'ls:List entries'
        'show:Show an entry'
        'edit:Edit an entry in $EDITOR'
        'rm:Remove entries'
        'passwd:Change the master password'
        'audit:Rate password health'
        'generate:Generate a random password'
        'export:Write a passphrase protected backup'
        'import:Merge a backup into the vault'
        'push:Upload the vault to the sync directory'
        'pull:Fetch entries from the sync directory'
        'merge:Merge entries of another account'
        'adopt:Replace the local vault with the remote account'
        'clear:Delete every local entry'
        'credentials:Exchange account credentials'
        'compact:Compact vault to reclaim disk space'
        'status:Show vault status'
        'keyring:Manage password in OS keyring'
        'help:Show help for a command'
        'completion:Generate shell completions'
    )

    _arguments -C \
        '1: :->command' \
        '*: :->args'

    case "$state" in
        command)
            _describe -t commands 'lockvault commands' commands
            ;;
        args)
            case "${words[2]}" in
                ls)
                    _arguments '-favorites[Only favorites]'
                    ;;
                show)
                    _arguments '-reveal[Print the password]'
                    ;;
                rm|clear|adopt)
                    _arguments '-force[Do not ask for confirmation]'
                    ;;
                merge)
                    _arguments '-dry-run[Show what would change]'
                    ;;
                export|import)
                    _files
                    ;;
                credentials)
                    _values 'subcommand' export import
                    ;;
                keyring)
                    _values 'subcommand' save delete status
                    ;;
                help)
                    _describe -t commands 'lockvault commands' commands
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
            esac
            ;;
    esac
}

_lockvault "$@"
`

const fishCompletion = `# lockvault fish completions

set -l commands init unlock add ls show edit rm passwd audit generate export import push pull merge adopt clear credentials compact status keyring help completion

complete -c lockvault -f

# Commands
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a init -d 'Create a new vault'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a unlock -d 'Check the master password'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a add -d 'Add an entry'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a ls -d 'List entries'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a show -d 'Show an entry'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a edit -d 'Edit an entry'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a rm -d 'Remove entries'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a passwd -d 'Change master password'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a audit -d 'Rate password health'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a generate -d 'Generate a password'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a export -d 'Write a backup'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a import -d 'Restore a backup'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a push -d 'Upload to sync directory'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a pull -d 'Fetch from sync directory'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a merge -d 'Merge another account'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a adopt -d 'Adopt the remote account'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a clear -d 'Delete local entries'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a credentials -d 'Exchange credentials'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a compact -d 'Compact vault'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a status -d 'Show vault status'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a keyring -d 'Manage password in OS keyring'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a help -d 'Show help'
complete -c lockvault -n "not __fish_seen_subcommand_from $commands" -a completion -d 'Generate completions'

complete -c lockvault -n "__fish_seen_subcommand_from ls" -o favorites -d 'Only favorites'
complete -c lockvault -n "__fish_seen_subcommand_from show" -o reveal -d 'Print the password'
complete -c lockvault -n "__fish_seen_subcommand_from merge" -o dry-run -d 'Show what would change'
complete -c lockvault -n "__fish_seen_subcommand_from rm clear adopt" -o force -d 'Do not ask'
complete -c lockvault -n "__fish_seen_subcommand_from export import" -F
complete -c lockvault -n "__fish_seen_subcommand_from credentials" -a "export import"
complete -c lockvault -n "__fish_seen_subcommand_from keyring" -a "save delete status"
complete -c lockvault -n "__fish_seen_subcommand_from help" -a "$commands"
complete -c lockvault -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
`
